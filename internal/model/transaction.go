package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses as reported by the payment provider.
const (
	TransactionPending    = "pending"
	TransactionProcessing = "processing"
	TransactionCompleted  = "completed"
	TransactionFailed     = "failed"
)

// Transaction tracks the payment for one purchase record.  It is created when
// the buyer starts paying and finalised by the provider webhook.
type Transaction struct {
	ID               string
	PurchaseRecordID string
	OfferID          string
	BuyerID          string
	SellerID         string
	Status           string
	PaymentID        *string
	PaymentMethod    string
	Amount           decimal.Decimal
	Currency         string
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
