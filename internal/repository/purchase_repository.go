package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/groupshare/internal/model"
)

// PurchaseRepo provides access to purchase_records.  State transitions are
// written as conditional updates whose WHERE clause encodes the allowed
// source state, so a transition happens at most once even when two
// requests race.
type PurchaseRepo struct {
	db *sql.DB
}

// NewPurchaseRepo returns a new PurchaseRepo bound to the given database.
func NewPurchaseRepo(db *sql.DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

const purchaseColumns = `id, user_id, group_sub_id, status, access_provided, access_confirmed,
       access_confirmed_at, hold_expires_at, created_at, updated_at`

func scanPurchase(row interface{ Scan(...any) error }) (model.PurchaseRecord, error) {
	var (
		p           model.PurchaseRecord
		confirmedAt sql.NullTime
		holdUntil   sql.NullTime
	)
	err := row.Scan(&p.ID, &p.UserID, &p.OfferID, &p.Status, &p.AccessProvided, &p.AccessConfirmed,
		&confirmedAt, &holdUntil, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.PurchaseRecord{}, err
	}
	p.AccessConfirmedAt = timePtr(confirmedAt)
	p.HoldExpiresAt = timePtr(holdUntil)
	return p, nil
}

// Create inserts a purchase record.  ID, status and timestamps must be set
// by the caller.
func (r *PurchaseRepo) Create(ctx context.Context, p *model.PurchaseRecord) error {
	var hold sql.NullTime
	if p.HoldExpiresAt != nil {
		hold = sql.NullTime{Time: *p.HoldExpiresAt, Valid: true}
	}
	const q = `INSERT INTO purchase_records
        (id, user_id, group_sub_id, status, access_provided, access_confirmed, hold_expires_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, 0, 0, ?, ?, ?)`
	if _, err := conn(ctx, r.db).ExecContext(ctx, q, p.ID, p.UserID, p.OfferID, p.Status, hold, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("create purchase: %w", err)
	}
	return nil
}

// GetByID loads a purchase record or returns ErrNotFound.
func (r *PurchaseRepo) GetByID(ctx context.Context, id string) (model.PurchaseRecord, error) {
	p, err := scanPurchase(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchase_records WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PurchaseRecord{}, ErrNotFound
		}
		return model.PurchaseRecord{}, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

// GetForUpdate loads a purchase and locks its row until the surrounding
// transaction ends.
func (r *PurchaseRepo) GetForUpdate(ctx context.Context, id string) (model.PurchaseRecord, error) {
	p, err := scanPurchase(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchase_records WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PurchaseRecord{}, ErrNotFound
		}
		return model.PurchaseRecord{}, fmt.Errorf("lock purchase: %w", err)
	}
	return p, nil
}

// ListByUser returns the caller's purchases, newest first.
func (r *PurchaseRepo) ListByUser(ctx context.Context, userID string) ([]model.PurchaseRecord, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchase_records WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()
	out := make([]model.PurchaseRecord, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkAccessProvided flags that an access link has been issued.
func (r *PurchaseRepo) MarkAccessProvided(ctx context.Context, id string, now time.Time) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE purchase_records SET access_provided = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("mark access provided: %w", err)
	}
	return nil
}

// MarkCompleted moves a purchase to completed.  It reports false when the
// record was already completed, which makes webhook redelivery a no-op.
func (r *PurchaseRepo) MarkCompleted(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.transition(ctx, id, model.PurchaseCompleted, now)
}

// MarkFailed moves a pending purchase to failed, releasing its hold.
func (r *PurchaseRepo) MarkFailed(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE purchase_records SET status = ?, hold_expires_at = NULL, updated_at = ?
          WHERE id = ? AND status = ?`,
		model.PurchaseFailed, now, id, model.PurchasePendingPayment)
	if err != nil {
		return false, fmt.Errorf("mark purchase failed: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PurchaseRepo) transition(ctx context.Context, id, status string, now time.Time) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE purchase_records SET status = ?, hold_expires_at = NULL, updated_at = ?
          WHERE id = ? AND status <> ?`,
		status, now, id, status)
	if err != nil {
		return false, fmt.Errorf("update purchase status: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ConfirmAccess records the buyer's confirmation.  The update only applies
// when access has been provided; false means the precondition failed.
func (r *PurchaseRepo) ConfirmAccess(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE purchase_records SET access_confirmed = 1, access_confirmed_at = ?, updated_at = ?
          WHERE id = ? AND access_provided = 1`,
		at, at, id)
	if err != nil {
		return false, fmt.Errorf("confirm access: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
