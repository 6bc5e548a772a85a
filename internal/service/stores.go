package service

import (
	"context"
	"time"

	"github.com/iliyamo/groupshare/internal/model"
	"github.com/iliyamo/groupshare/internal/payment"
)

// The interfaces below are satisfied by the MySQL repositories and by the
// in-memory fakes used in tests.

type OfferStore interface {
	GetByID(ctx context.Context, id string) (model.Offer, error)
	ReserveSlot(ctx context.Context, offerID string, now time.Time) (model.Offer, error)
	DecrementSlot(ctx context.Context, offerID string) error
	SellerID(ctx context.Context, offerID string) (string, error)
	AccessInstructions(ctx context.Context, offerID string) (string, error)
}

type PurchaseStore interface {
	Create(ctx context.Context, p *model.PurchaseRecord) error
	GetByID(ctx context.Context, id string) (model.PurchaseRecord, error)
	GetForUpdate(ctx context.Context, id string) (model.PurchaseRecord, error)
	MarkAccessProvided(ctx context.Context, id string, now time.Time) error
	MarkCompleted(ctx context.Context, id string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, now time.Time) (bool, error)
	ConfirmAccess(ctx context.Context, id string, at time.Time) (bool, error)
}

type TransactionStore interface {
	Create(ctx context.Context, t *model.Transaction) error
	GetForUpdate(ctx context.Context, id string) (model.Transaction, error)
	GetByPurchase(ctx context.Context, purchaseID string) (model.Transaction, error)
	UpdateStatus(ctx context.Context, id, status string, paymentID *string, now time.Time) (bool, error)
}

type AccessTokenStore interface {
	Create(ctx context.Context, t *model.AccessToken) error
	Consume(ctx context.Context, tokenHash, purchaseID string, now time.Time) error
}

type DisputeStore interface {
	FindOpenByPurchase(ctx context.Context, purchaseID string) (model.Dispute, error)
	Create(ctx context.Context, d *model.Dispute) error
}

// TxRunner runs fn in a database transaction carried by the context.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaymentProcessor starts a charge with the payment provider.
type PaymentProcessor interface {
	Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error)
}

// Notifier delivers notifications on a best-effort basis; it never fails
// the caller.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}
