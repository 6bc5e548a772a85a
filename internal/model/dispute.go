package model

import "time"

// Dispute statuses.
const (
	DisputeOpen     = "open"
	DisputeResolved = "resolved"
)

// Dispute is a buyer-raised claim that granted access did not work.
type Dispute struct {
	ID                 string
	ReporterID         string
	ReportedEntityType string // "subscription"
	ReportedEntityID   string // offer id
	TransactionID      *string
	PurchaseRecordID   string
	DisputeType        string
	Description        string
	Status             string
	ResolutionDeadline time.Time
	CreatedAt          time.Time
}
