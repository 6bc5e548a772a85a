package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/groupshare/internal/clock"
	"github.com/iliyamo/groupshare/internal/model"
	"github.com/iliyamo/groupshare/internal/payment"
	"github.com/iliyamo/groupshare/internal/repository"
)

const (
	defaultAccessTokenTTL = 30 * time.Minute
	defaultDisputeWindow  = 72 * time.Hour

	disputeDescription = "Automatic report: the buyer could not access the subscription"
)

// PurchaseWorkflow drives a purchase from initiation through payment to
// access confirmation:
//
//	pending_payment --webhook completed--> completed
//	pending_payment --webhook failed-----> failed
//
// Access is provided when the payment is accepted and later confirmed or
// disputed by the buyer.
type PurchaseWorkflow struct {
	offers       OfferStore
	purchases    PurchaseStore
	transactions TransactionStore
	tokens       AccessTokenStore
	disputes     DisputeStore
	tx           TxRunner
	payments     PaymentProcessor
	notifier     Notifier
	hasher       *TokenHasher
	clock        clock.Clock
	log          *zap.Logger

	baseURL        string
	accessTokenTTL time.Duration
	holdTTL        time.Duration
	disputeWindow  time.Duration
}

// Deps groups the collaborators of a PurchaseWorkflow.
type Deps struct {
	Offers       OfferStore
	Purchases    PurchaseStore
	Transactions TransactionStore
	Tokens       AccessTokenStore
	Disputes     DisputeStore
	Tx           TxRunner
	Payments     PaymentProcessor
	Notifier     Notifier
	Hasher       *TokenHasher
}

type Option func(*PurchaseWorkflow)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(w *PurchaseWorkflow) { w.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(w *PurchaseWorkflow) { w.log = l }
}

// WithBaseURL sets the public URL access links are built on.
func WithBaseURL(u string) Option {
	return func(w *PurchaseWorkflow) { w.baseURL = strings.TrimRight(u, "/") }
}

func WithAccessTokenTTL(d time.Duration) Option {
	return func(w *PurchaseWorkflow) {
		if d > 0 {
			w.accessTokenTTL = d
		}
	}
}

// WithHoldTTL sets the reservation lease taken at initiation.  Zero
// disables holds.
func WithHoldTTL(d time.Duration) Option {
	return func(w *PurchaseWorkflow) {
		if d >= 0 {
			w.holdTTL = d
		}
	}
}

func WithDisputeWindow(d time.Duration) Option {
	return func(w *PurchaseWorkflow) {
		if d > 0 {
			w.disputeWindow = d
		}
	}
}

func NewPurchaseWorkflow(d Deps, opts ...Option) *PurchaseWorkflow {
	w := &PurchaseWorkflow{
		offers:         d.Offers,
		purchases:      d.Purchases,
		transactions:   d.Transactions,
		tokens:         d.Tokens,
		disputes:       d.Disputes,
		tx:             d.Tx,
		payments:       d.Payments,
		notifier:       d.Notifier,
		hasher:         d.Hasher,
		clock:          clock.NewSystem(),
		log:            zap.NewNop(),
		accessTokenTTL: defaultAccessTokenTTL,
		disputeWindow:  defaultDisputeWindow,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Initiate creates a pending purchase for one slot of offerID.  The offer
// row stays locked while capacity is checked and the record inserted.
func (w *PurchaseWorkflow) Initiate(ctx context.Context, buyerID, offerID string) (model.PurchaseRecord, error) {
	if strings.TrimSpace(offerID) == "" {
		return model.PurchaseRecord{}, fmt.Errorf("%w: offer id is required", ErrValidation)
	}
	now := w.clock.Now()
	var rec model.PurchaseRecord
	err := w.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := w.offers.ReserveSlot(ctx, offerID, now); err != nil {
			return err
		}
		rec = model.PurchaseRecord{
			ID:        uuid.NewString(),
			UserID:    buyerID,
			OfferID:   offerID,
			Status:    model.PurchasePendingPayment,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if w.holdTTL > 0 {
			until := now.Add(w.holdTTL)
			rec.HoldExpiresAt = &until
		}
		return w.purchases.Create(ctx, &rec)
	})
	if err != nil {
		return model.PurchaseRecord{}, err
	}
	w.log.Info("purchase initiated",
		zap.String("purchase_id", rec.ID),
		zap.String("offer_id", offerID),
		zap.String("buyer_id", buyerID))
	return rec, nil
}

// PaymentOutcome is returned by ProcessPayment.  AccessURL is empty when
// TokenIssued is false.
type PaymentOutcome struct {
	PurchaseID    string
	TransactionID string
	PaymentID     string
	Status        string
	AccessURL     string
	TokenIssued   bool
}

// ProcessPayment charges the buyer for a pending purchase and issues the
// one-time access link.  A purchase whose last transaction is pending,
// processing or completed is not charged again.  Completion of the purchase
// itself is left to the payment webhook, unless the processor reports the
// charge as already completed.
func (w *PurchaseWorkflow) ProcessPayment(ctx context.Context, callerID, purchaseID, method string) (PaymentOutcome, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return PaymentOutcome{}, fmt.Errorf("%w: paymentMethod is required", ErrValidation)
	}
	var (
		p     model.PurchaseRecord
		offer model.Offer
		txn   model.Transaction
		key   string
	)
	// The purchase row stays locked while its open transaction is checked
	// and the new one inserted, so only one caller gets to charge.
	err := w.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		p, err = w.purchases.GetForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.UserID != callerID {
			return repository.ErrForbidden
		}
		if p.Status != model.PurchasePendingPayment {
			return fmt.Errorf("%w: purchase is %s", repository.ErrConflict, p.Status)
		}
		key = p.ID
		prev, err := w.transactions.GetByPurchase(ctx, p.ID)
		switch {
		case err == nil && prev.Status != model.TransactionFailed:
			return fmt.Errorf("%w: payment is already %s", repository.ErrConflict, prev.Status)
		case err == nil:
			// a declined attempt may be retried under a fresh key
			key = p.ID + ":" + prev.ID
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		offer, err = w.offers.GetByID(ctx, p.OfferID)
		if err != nil {
			return fmt.Errorf("load offer: %w", err)
		}
		sellerID, err := w.offers.SellerID(ctx, p.OfferID)
		if err != nil {
			return fmt.Errorf("resolve seller: %w", err)
		}
		now := w.clock.Now()
		txn = model.Transaction{
			ID:               uuid.NewString(),
			PurchaseRecordID: p.ID,
			OfferID:          p.OfferID,
			BuyerID:          p.UserID,
			SellerID:         sellerID,
			Status:           model.TransactionPending,
			PaymentMethod:    method,
			Amount:           offer.PricePerSlot,
			Currency:         offer.Currency,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return w.transactions.Create(ctx, &txn)
	})
	if err != nil {
		return PaymentOutcome{}, err
	}

	res, err := w.payments.Charge(ctx, payment.ChargeRequest{
		TransactionID:  txn.ID,
		IdempotencyKey: key,
		UserID:         p.UserID,
		OfferID:        p.OfferID,
		Method:         method,
		Amount:         offer.PricePerSlot,
		Currency:       offer.Currency,
	})
	if err == nil && res.Status == payment.StatusFailed {
		err = errors.New("payment was declined")
	}
	if err != nil {
		if _, uerr := w.transactions.UpdateStatus(ctx, txn.ID, model.TransactionFailed, nil, w.clock.Now()); uerr != nil {
			w.log.Error("mark transaction failed", zap.String("transaction_id", txn.ID), zap.Error(uerr))
		}
		w.log.Warn("payment rejected", zap.String("purchase_id", p.ID), zap.Error(err))
		return PaymentOutcome{}, &PaymentError{Err: err}
	}

	paymentID := res.PaymentID
	if _, err := w.transactions.UpdateStatus(ctx, txn.ID, model.TransactionProcessing, &paymentID, w.clock.Now()); err != nil {
		return PaymentOutcome{}, err
	}
	out := PaymentOutcome{
		PurchaseID:    p.ID,
		TransactionID: txn.ID,
		PaymentID:     paymentID,
		Status:        model.TransactionProcessing,
	}
	if res.Status == payment.StatusCompleted {
		if err := w.WebhookComplete(ctx, txn.ID, model.TransactionCompleted, paymentID); err != nil {
			return PaymentOutcome{}, err
		}
		out.Status = model.TransactionCompleted
	}

	raw, err := w.issueAccessToken(ctx, p.ID)
	if err != nil {
		// the charge went through; the buyer can still confirm later
		w.log.Error("issue access token", zap.String("purchase_id", p.ID), zap.Error(err))
		return out, nil
	}
	out.AccessURL = w.accessURL(p.ID, raw)
	out.TokenIssued = true
	return out, nil
}

func (w *PurchaseWorkflow) issueAccessToken(ctx context.Context, purchaseID string) (string, error) {
	raw, err := newRawToken()
	if err != nil {
		return "", err
	}
	now := w.clock.Now()
	err = w.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := w.tokens.Create(ctx, &model.AccessToken{
			TokenHash:        w.hasher.Hash(raw),
			PurchaseRecordID: purchaseID,
			ExpiresAt:        now.Add(w.accessTokenTTL),
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		return w.purchases.MarkAccessProvided(ctx, purchaseID, now)
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (w *PurchaseWorkflow) accessURL(purchaseID, raw string) string {
	q := url.Values{}
	q.Set("id", purchaseID)
	q.Set("token", raw)
	return w.baseURL + "/access?" + q.Encode()
}

// WebhookComplete applies a provider status update to a transaction.  The
// transaction row is locked for the duration; a transaction that is already
// completed is left alone, so redelivered or concurrent webhooks decrement
// the offer at most once.
func (w *PurchaseWorkflow) WebhookComplete(ctx context.Context, transactionID, status, paymentID string) error {
	if strings.TrimSpace(transactionID) == "" {
		return fmt.Errorf("%w: transactionId is required", ErrValidation)
	}
	switch status {
	case model.TransactionPending, model.TransactionProcessing, model.TransactionCompleted, model.TransactionFailed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	var notes []model.Notification
	err := w.tx.WithTx(ctx, func(ctx context.Context) error {
		t, err := w.transactions.GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if t.Status == model.TransactionCompleted {
			w.log.Debug("webhook for completed transaction ignored", zap.String("transaction_id", t.ID))
			return nil
		}
		now := w.clock.Now()
		var pid *string
		if paymentID != "" {
			pid = &paymentID
		}
		if _, err := w.transactions.UpdateStatus(ctx, t.ID, status, pid, now); err != nil {
			return err
		}

		switch status {
		case model.TransactionCompleted:
			changed, err := w.purchases.MarkCompleted(ctx, t.PurchaseRecordID, now)
			if err != nil {
				return err
			}
			if !changed {
				return nil
			}
			if err := w.offers.DecrementSlot(ctx, t.OfferID); err != nil {
				if !errors.Is(err, repository.ErrExhausted) {
					return err
				}
				// paid for a slot that is no longer there; keep the payment
				w.log.Warn("offer oversold",
					zap.String("offer_id", t.OfferID),
					zap.String("purchase_id", t.PurchaseRecordID))
			}
			notes = completionNotices(t)
		case model.TransactionFailed:
			if _, err := w.purchases.MarkFailed(ctx, t.PurchaseRecordID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, n := range notes {
		w.notifier.Notify(ctx, n)
	}
	w.log.Info("payment webhook applied",
		zap.String("transaction_id", transactionID),
		zap.String("status", status))
	return nil
}

func completionNotices(t model.Transaction) []model.Notification {
	return []model.Notification{
		{
			UserID:            t.BuyerID,
			Type:              model.NotifyPurchaseCompleted,
			Title:             "Purchase completed",
			Content:           "Your purchase was completed. Open it to see the access details.",
			RelatedEntityType: "purchase",
			RelatedEntityID:   t.PurchaseRecordID,
		},
		{
			UserID:            t.SellerID,
			Type:              model.NotifySaleCompleted,
			Title:             "Slot sold",
			Content:           "Someone just bought a slot in your subscription.",
			RelatedEntityType: "purchase",
			RelatedEntityID:   t.PurchaseRecordID,
		},
	}
}

// ConfirmOutcome is returned by ConfirmAccess.
type ConfirmOutcome struct {
	Confirmed      bool
	DisputeCreated bool
	DisputeID      string
}

// ConfirmAccess records whether the access provided to the buyer works.  A
// negative answer opens a dispute against the offer; if the dispute cannot
// be stored the confirmation still stands and DisputeCreated is false.
func (w *PurchaseWorkflow) ConfirmAccess(ctx context.Context, callerID, purchaseID string, isWorking bool) (ConfirmOutcome, error) {
	p, err := w.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return ConfirmOutcome{}, err
	}
	if p.UserID != callerID {
		return ConfirmOutcome{}, repository.ErrForbidden
	}
	if p.Status == model.PurchaseFailed {
		return ConfirmOutcome{}, fmt.Errorf("%w: purchase payment failed", ErrInvalidState)
	}
	if !p.AccessProvided {
		return ConfirmOutcome{}, fmt.Errorf("%w: access has not been provided yet", ErrInvalidState)
	}
	now := w.clock.Now()
	ok, err := w.purchases.ConfirmAccess(ctx, p.ID, now)
	if err != nil {
		return ConfirmOutcome{}, err
	}
	if !ok {
		return ConfirmOutcome{}, fmt.Errorf("%w: access has not been provided yet", ErrInvalidState)
	}
	out := ConfirmOutcome{Confirmed: true}
	if isWorking {
		return out, nil
	}

	d, created, err := w.openDispute(ctx, p, now)
	if err != nil {
		w.log.Error("open dispute", zap.String("purchase_id", p.ID), zap.Error(err))
		return out, nil
	}
	out.DisputeCreated = true
	out.DisputeID = d.ID
	if created {
		w.notifyDispute(ctx, p, d)
	}
	return out, nil
}

// openDispute returns the open dispute of the purchase, creating one when
// none exists.  created reports whether a new row was written.
func (w *PurchaseWorkflow) openDispute(ctx context.Context, p model.PurchaseRecord, now time.Time) (model.Dispute, bool, error) {
	var (
		d       model.Dispute
		created bool
	)
	err := w.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := w.disputes.FindOpenByPurchase(ctx, p.ID)
		if err == nil {
			d = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		var txnID *string
		if t, err := w.transactions.GetByPurchase(ctx, p.ID); err == nil {
			txnID = &t.ID
		} else if !errors.Is(err, repository.ErrNotFound) {
			w.log.Warn("lookup transaction for dispute", zap.String("purchase_id", p.ID), zap.Error(err))
		}
		d = model.Dispute{
			ID:                 uuid.NewString(),
			ReporterID:         p.UserID,
			ReportedEntityType: "subscription",
			ReportedEntityID:   p.OfferID,
			TransactionID:      txnID,
			PurchaseRecordID:   p.ID,
			DisputeType:        "access",
			Description:        disputeDescription,
			Status:             model.DisputeOpen,
			ResolutionDeadline: now.Add(w.disputeWindow),
			CreatedAt:          now,
		}
		if err := w.disputes.Create(ctx, &d); err != nil {
			return err
		}
		created = true
		return nil
	})
	return d, created, err
}

func (w *PurchaseWorkflow) notifyDispute(ctx context.Context, p model.PurchaseRecord, d model.Dispute) {
	w.notifier.Notify(ctx, model.Notification{
		UserID:            p.UserID,
		Type:              model.NotifyDisputeCreated,
		Title:             "Access problem reported",
		Content:           "Your report was registered. We will contact you soon.",
		RelatedEntityType: "dispute",
		RelatedEntityID:   d.ID,
	})
	sellerID, err := w.offers.SellerID(ctx, p.OfferID)
	if err != nil {
		w.log.Warn("resolve seller for dispute notice", zap.String("dispute_id", d.ID), zap.Error(err))
		return
	}
	w.notifier.Notify(ctx, model.Notification{
		UserID:            sellerID,
		Type:              model.NotifyDisputeFiled,
		Title:             "Access problem reported",
		Content:           "A buyer reported a problem accessing your subscription. Please check it.",
		RelatedEntityType: "dispute",
		RelatedEntityID:   d.ID,
	})
}

// Access is what a redeemed access link reveals.
type Access struct {
	PurchaseID   string
	OfferID      string
	Instructions string
}

// RedeemAccess burns the one-time token of an access link and returns the
// offer's access instructions.  Unknown, used and expired tokens all yield
// ErrTokenInvalid.  The token stays unused if the instructions cannot be
// loaded.
func (w *PurchaseWorkflow) RedeemAccess(ctx context.Context, purchaseID, rawToken string) (Access, error) {
	if purchaseID == "" || rawToken == "" {
		return Access{}, fmt.Errorf("%w: id and token are required", ErrValidation)
	}
	p, err := w.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Access{}, ErrTokenInvalid
		}
		return Access{}, err
	}
	if p.Status == model.PurchaseFailed {
		return Access{}, ErrTokenInvalid
	}
	var text string
	err = w.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := w.tokens.Consume(ctx, w.hasher.Hash(rawToken), p.ID, w.clock.Now()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrTokenInvalid
			}
			return err
		}
		var err error
		if text, err = w.offers.AccessInstructions(ctx, p.OfferID); err != nil {
			return fmt.Errorf("load access instructions: %w", err)
		}
		return nil
	})
	if err != nil {
		return Access{}, err
	}
	return Access{PurchaseID: p.ID, OfferID: p.OfferID, Instructions: text}, nil
}
