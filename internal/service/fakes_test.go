package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/groupshare/internal/model"
	"github.com/iliyamo/groupshare/internal/payment"
	"github.com/iliyamo/groupshare/internal/repository"
)

// memDB is the shared state behind the in-memory stores.  fakeTx
// serialises transactions, which stands in for the row locks MySQL takes.
//
// The guards in the fakes below mirror the WHERE clauses of the conditional
// updates in internal/repository (OfferRepo.ReserveSlot and DecrementSlot,
// PurchaseRepo.MarkCompleted, MarkFailed and ConfirmAccess,
// TransactionRepo.UpdateStatus, AccessTokenRepo.Consume).  Change them
// together.
type memDB struct {
	mu           sync.Mutex
	offers       map[string]*model.Offer
	sellers      map[string]string
	instructions map[string]string
	purchases    map[string]*model.PurchaseRecord
	transactions map[string]*model.Transaction
	txnOrder     []string
	tokens       map[string]*model.AccessToken
	disputes     []*model.Dispute

	decrements       int
	tokenCreateErr   error
	disputeCreateErr error
}

func newMemDB() *memDB {
	return &memDB{
		offers:       map[string]*model.Offer{},
		sellers:      map[string]string{},
		instructions: map[string]string{},
		purchases:    map[string]*model.PurchaseRecord{},
		transactions: map[string]*model.Transaction{},
		tokens:       map[string]*model.AccessToken{},
	}
}

func (db *memDB) addOffer(id, sellerID string, slots int) {
	db.offers[id] = &model.Offer{
		ID:             id,
		GroupID:        "group-" + id,
		PlatformID:     "netflix",
		Status:         model.OfferActive,
		SlotsTotal:     slots,
		SlotsAvailable: slots,
		PricePerSlot:   decimal.RequireFromString("12.50"),
		Currency:       "PLN",
	}
	db.sellers[id] = sellerID
	db.instructions[id] = "login: family@example.com"
}

type fakeOffers struct{ db *memDB }

func (f fakeOffers) GetByID(_ context.Context, id string) (model.Offer, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.offers[id]
	if !ok {
		return model.Offer{}, repository.ErrNotFound
	}
	return *o, nil
}

func (f fakeOffers) ReserveSlot(_ context.Context, id string, now time.Time) (model.Offer, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.offers[id]
	if !ok {
		return model.Offer{}, repository.ErrNotFound
	}
	if o.Status != model.OfferActive || o.SlotsAvailable <= 0 {
		return model.Offer{}, repository.ErrUnavailable
	}
	held := 0
	for _, p := range f.db.purchases {
		if p.OfferID == id && p.HoldActive(now) {
			held++
		}
	}
	if o.SlotsAvailable-held <= 0 {
		return model.Offer{}, repository.ErrUnavailable
	}
	return *o, nil
}

func (f fakeOffers) DecrementSlot(_ context.Context, id string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.offers[id]
	if !ok || o.SlotsAvailable <= 0 {
		return repository.ErrExhausted
	}
	o.SlotsAvailable--
	f.db.decrements++
	return nil
}

func (f fakeOffers) SellerID(_ context.Context, id string) (string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sellers[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	return s, nil
}

func (f fakeOffers) AccessInstructions(_ context.Context, id string) (string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.instructions[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	return s, nil
}

type fakePurchases struct{ db *memDB }

func (f fakePurchases) Create(_ context.Context, p *model.PurchaseRecord) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	cp := *p
	f.db.purchases[p.ID] = &cp
	return nil
}

func (f fakePurchases) GetByID(_ context.Context, id string) (model.PurchaseRecord, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.purchases[id]
	if !ok {
		return model.PurchaseRecord{}, repository.ErrNotFound
	}
	return *p, nil
}

func (f fakePurchases) GetForUpdate(ctx context.Context, id string) (model.PurchaseRecord, error) {
	return f.GetByID(ctx, id)
}

func (f fakePurchases) MarkAccessProvided(_ context.Context, id string, now time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if p, ok := f.db.purchases[id]; ok {
		p.AccessProvided = true
		p.UpdatedAt = now
	}
	return nil
}

func (f fakePurchases) MarkCompleted(_ context.Context, id string, now time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.purchases[id]
	if !ok || p.Status == model.PurchaseCompleted {
		return false, nil
	}
	p.Status = model.PurchaseCompleted
	p.HoldExpiresAt = nil
	p.UpdatedAt = now
	return true, nil
}

func (f fakePurchases) MarkFailed(_ context.Context, id string, now time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.purchases[id]
	if !ok || p.Status != model.PurchasePendingPayment {
		return false, nil
	}
	p.Status = model.PurchaseFailed
	p.HoldExpiresAt = nil
	p.UpdatedAt = now
	return true, nil
}

func (f fakePurchases) ConfirmAccess(_ context.Context, id string, at time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.purchases[id]
	if !ok || !p.AccessProvided {
		return false, nil
	}
	p.AccessConfirmed = true
	p.AccessConfirmedAt = &at
	return true, nil
}

type fakeTransactions struct{ db *memDB }

func (f fakeTransactions) Create(_ context.Context, t *model.Transaction) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	cp := *t
	f.db.transactions[t.ID] = &cp
	f.db.txnOrder = append(f.db.txnOrder, t.ID)
	return nil
}

func (f fakeTransactions) GetForUpdate(_ context.Context, id string) (model.Transaction, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.transactions[id]
	if !ok {
		return model.Transaction{}, repository.ErrNotFound
	}
	return *t, nil
}

func (f fakeTransactions) GetByPurchase(_ context.Context, purchaseID string) (model.Transaction, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	// latest first, like ORDER BY created_at DESC
	for i := len(f.db.txnOrder) - 1; i >= 0; i-- {
		if t := f.db.transactions[f.db.txnOrder[i]]; t.PurchaseRecordID == purchaseID {
			return *t, nil
		}
	}
	return model.Transaction{}, repository.ErrNotFound
}

func (f fakeTransactions) UpdateStatus(_ context.Context, id, status string, paymentID *string, now time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.transactions[id]
	if !ok || t.Status == model.TransactionCompleted {
		return false, nil
	}
	t.Status = status
	if paymentID != nil {
		t.PaymentID = paymentID
	}
	if status == model.TransactionCompleted {
		t.CompletedAt = &now
	}
	t.UpdatedAt = now
	return true, nil
}

type fakeTokens struct{ db *memDB }

func (f fakeTokens) Create(_ context.Context, t *model.AccessToken) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.tokenCreateErr != nil {
		return f.db.tokenCreateErr
	}
	cp := *t
	f.db.tokens[t.TokenHash] = &cp
	return nil
}

func (f fakeTokens) Consume(_ context.Context, hash, purchaseID string, now time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	t, ok := f.db.tokens[hash]
	if !ok || t.PurchaseRecordID != purchaseID || t.Used || !t.ExpiresAt.After(now) {
		return repository.ErrNotFound
	}
	t.Used = true
	t.UsedAt = &now
	return nil
}

type fakeDisputes struct{ db *memDB }

func (f fakeDisputes) FindOpenByPurchase(_ context.Context, purchaseID string) (model.Dispute, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, d := range f.db.disputes {
		if d.PurchaseRecordID == purchaseID && d.Status == model.DisputeOpen {
			return *d, nil
		}
	}
	return model.Dispute{}, repository.ErrNotFound
}

func (f fakeDisputes) Create(_ context.Context, d *model.Dispute) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if f.db.disputeCreateErr != nil {
		return f.db.disputeCreateErr
	}
	cp := *d
	f.db.disputes = append(f.db.disputes, &cp)
	return nil
}

type fakeTxKey struct{}

type fakeTx struct{ mu sync.Mutex }

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(context.WithValue(ctx, fakeTxKey{}, true))
}

type fakeProcessor struct {
	mu    sync.Mutex
	res   payment.ChargeResult
	err   error
	calls []payment.ChargeRequest
}

func (f *fakeProcessor) Charge(_ context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.res, f.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}
