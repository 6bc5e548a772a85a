package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/groupshare/internal/model"
)

// AccessTokenRepo persists single-use access tokens (keyed hash only).
type AccessTokenRepo struct{ db *sql.DB }

func NewAccessTokenRepo(db *sql.DB) *AccessTokenRepo { return &AccessTokenRepo{db: db} }

// Create inserts a token hash row.
func (r *AccessTokenRepo) Create(ctx context.Context, t *model.AccessToken) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO access_tokens (token_hash, purchase_record_id, expires_at, used, created_at) VALUES (?,?,?,0,?)",
		t.TokenHash, t.PurchaseRecordID, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return fmt.Errorf("store access token: %w", err)
	}
	return nil
}

// Consume burns an unused, unexpired token bound to purchaseID.  Unknown,
// used and expired tokens all yield ErrNotFound.
func (r *AccessTokenRepo) Consume(ctx context.Context, tokenHash, purchaseID string, now time.Time) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE access_tokens SET used = 1, used_at = ?
          WHERE token_hash = ? AND purchase_record_id = ? AND used = 0 AND expires_at > ?`,
		now, tokenHash, purchaseID, now)
	if err != nil {
		return fmt.Errorf("consume access token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume access token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
