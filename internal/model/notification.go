package model

import "time"

// Notification types emitted by the purchase workflow.
const (
	NotifyPurchaseCompleted = "purchase_completed"
	NotifySaleCompleted     = "sale_completed"
	NotifyDisputeCreated    = "dispute_created"
	NotifyDisputeFiled      = "dispute_filed"
)

// Notification is a fire-and-forget message addressed to one user.
type Notification struct {
	ID                string
	UserID            string
	Type              string
	Title             string
	Content           string
	RelatedEntityType string
	RelatedEntityID   string
	Read              bool
	CreatedAt         time.Time
}
