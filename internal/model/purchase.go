package model

import "time"

// Purchase record statuses.
const (
	PurchasePendingPayment = "pending_payment"
	PurchaseCompleted      = "completed"
	PurchaseFailed         = "failed"
)

// PurchaseRecord is the buyer-side record of an attempted or completed slot
// purchase (`purchase_records`).  HoldExpiresAt is the reservation lease set
// at initiation; a nil value means no capacity is held.
type PurchaseRecord struct {
	ID                string
	UserID            string
	OfferID           string // purchase_records.group_sub_id
	Status            string
	AccessProvided    bool
	AccessConfirmed   bool
	AccessConfirmedAt *time.Time
	HoldExpiresAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HoldActive reports whether the record still holds a slot at now.
func (p PurchaseRecord) HoldActive(now time.Time) bool {
	return p.Status == PurchasePendingPayment && p.HoldExpiresAt != nil && p.HoldExpiresAt.After(now)
}
