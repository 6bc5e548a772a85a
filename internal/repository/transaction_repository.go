package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/groupshare/internal/model"
)

// TransactionRepo persists payment transactions.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo returns a new TransactionRepo bound to db.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, purchase_record_id, group_sub_id, buyer_id, seller_id, status, payment_id,
       payment_method, amount, currency, completed_at, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (model.Transaction, error) {
	var (
		t           model.Transaction
		paymentID   sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.PurchaseRecordID, &t.OfferID, &t.BuyerID, &t.SellerID, &t.Status, &paymentID,
		&t.PaymentMethod, &t.Amount, &t.Currency, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Transaction{}, err
	}
	t.PaymentID = stringPtr(paymentID)
	t.CompletedAt = timePtr(completedAt)
	return t, nil
}

// Create inserts a transaction row.
func (r *TransactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	const q = `INSERT INTO transactions
        (id, purchase_record_id, group_sub_id, buyer_id, seller_id, status, payment_id, payment_method,
         amount, currency, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := conn(ctx, r.db).ExecContext(ctx, q, t.ID, t.PurchaseRecordID, t.OfferID, t.BuyerID, t.SellerID,
		t.Status, nullString(t.PaymentID), t.PaymentMethod, t.Amount, t.Currency, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// GetForUpdate loads and row-locks a transaction.  Must run inside a
// transaction for the lock to be meaningful.
func (r *TransactionRepo) GetForUpdate(ctx context.Context, id string) (model.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ? FOR UPDATE`, id)
}

// GetByPurchase returns the latest transaction for a purchase record.
func (r *TransactionRepo) GetByPurchase(ctx context.Context, purchaseID string) (model.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE purchase_record_id = ? ORDER BY created_at DESC LIMIT 1`, purchaseID)
}

func (r *TransactionRepo) getOne(ctx context.Context, q string, arg any) (model.Transaction, error) {
	t, err := scanTransaction(conn(ctx, r.db).QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transaction{}, ErrNotFound
		}
		return model.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// UpdateStatus sets the provider status and payment id.  completed_at is
// stamped when the status is completed.  A completed transaction is never
// moved to another status; false is returned in that case.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, id, status string, paymentID *string, now time.Time) (bool, error) {
	var completedAt sql.NullTime
	if status == model.TransactionCompleted {
		completedAt = sql.NullTime{Time: now, Valid: true}
	}
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE transactions
            SET status = ?, payment_id = COALESCE(?, payment_id), completed_at = ?, updated_at = ?
          WHERE id = ? AND status <> ?`,
		status, nullString(paymentID), completedAt, now, id, model.TransactionCompleted)
	if err != nil {
		return false, fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
