package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/groupshare/internal/model"
)

// OfferRepo maintains subscription offers (`group_subs`) and their slot
// inventory.  Slot accounting is done with conditional statements so that
// concurrent buyers never drive slots_available below zero.
type OfferRepo struct {
	db *sql.DB
}

// NewOfferRepo returns a new OfferRepo bound to the provided database.
func NewOfferRepo(db *sql.DB) *OfferRepo { return &OfferRepo{db: db} }

const offerColumns = `id, group_id, platform_id, status, slots_total, slots_available,
       price_per_slot, currency, created_at, updated_at`

func scanOffer(row interface{ Scan(...any) error }) (model.Offer, error) {
	var o model.Offer
	err := row.Scan(&o.ID, &o.GroupID, &o.PlatformID, &o.Status, &o.SlotsTotal, &o.SlotsAvailable,
		&o.PricePerSlot, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// Create inserts a new offer.  SlotsAvailable is initialised to SlotsTotal
// and the status to active when empty.
func (r *OfferRepo) Create(ctx context.Context, o *model.Offer) error {
	if o.Status == "" {
		o.Status = model.OfferActive
	}
	o.SlotsAvailable = o.SlotsTotal
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	const q = `INSERT INTO group_subs
        (id, group_id, platform_id, status, slots_total, slots_available, price_per_slot, currency, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := conn(ctx, r.db).ExecContext(ctx, q, o.ID, o.GroupID, o.PlatformID, o.Status, o.SlotsTotal,
		o.SlotsAvailable, o.PricePerSlot, o.Currency, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return fmt.Errorf("create offer: %w", err)
	}
	return nil
}

// GetByID loads one offer.  It returns ErrNotFound when no row matches.
func (r *OfferRepo) GetByID(ctx context.Context, id string) (model.Offer, error) {
	o, err := scanOffer(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM group_subs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Offer{}, ErrNotFound
		}
		return model.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

// List returns active offers matching the filter.  OrderBy is restricted to
// a fixed set of columns; anything else falls back to created_at.
func (r *OfferRepo) List(ctx context.Context, f model.OfferFilter) ([]model.Offer, error) {
	var (
		where = []string{"status = ?"}
		args  = []any{model.OfferActive}
	)
	if f.PlatformID != "" {
		where = append(where, "platform_id = ?")
		args = append(args, f.PlatformID)
	}
	if f.MinPrice != nil {
		where = append(where, "price_per_slot >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, "price_per_slot <= ?")
		args = append(args, *f.MaxPrice)
	}
	if f.OnlyAvailable {
		where = append(where, "slots_available > 0")
	}
	order := "created_at"
	switch f.OrderBy {
	case "price_per_slot", "slots_available", "created_at":
		order = f.OrderBy
	}
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + offerColumns + ` FROM group_subs WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + order + ` ` + dir + ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()
	offers := make([]model.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// ListByGroup returns every offer of a group, inactive ones included,
// oldest first.
func (r *OfferRepo) ListByGroup(ctx context.Context, groupID string) ([]model.Offer, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+offerColumns+` FROM group_subs WHERE group_id = ? ORDER BY created_at`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group offers: %w", err)
	}
	defer rows.Close()
	offers := make([]model.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// Update writes the mutable offer fields (status, price, currency).
func (r *OfferRepo) Update(ctx context.Context, o *model.Offer) error {
	o.UpdatedAt = time.Now().UTC()
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE group_subs SET status = ?, price_per_slot = ?, currency = ?, updated_at = ? WHERE id = ?`,
		o.Status, o.PricePerSlot, o.Currency, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports zero for unchanged rows too; confirm existence.
		if _, err := r.GetByID(ctx, o.ID); err != nil {
			return err
		}
	}
	return nil
}

// ReserveSlot locks the offer row and checks that a slot can be sold.  It
// does not decrement slots_available; that happens on payment completion.
// Pending purchases whose hold has not expired at now count against the
// free capacity.  Call it inside a transaction so the row lock spans the
// purchase insert.
func (r *OfferRepo) ReserveSlot(ctx context.Context, offerID string, now time.Time) (model.Offer, error) {
	c := conn(ctx, r.db)
	o, err := scanOffer(c.QueryRowContext(ctx,
		`SELECT `+offerColumns+` FROM group_subs WHERE id = ? FOR UPDATE`, offerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Offer{}, ErrNotFound
		}
		return model.Offer{}, fmt.Errorf("lock offer: %w", err)
	}
	if o.Status != model.OfferActive || o.SlotsAvailable <= 0 {
		return model.Offer{}, ErrUnavailable
	}
	var held int
	err = c.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchase_records
          WHERE group_sub_id = ? AND status = ? AND hold_expires_at IS NOT NULL AND hold_expires_at > ?`,
		offerID, model.PurchasePendingPayment, now).Scan(&held)
	if err != nil {
		return model.Offer{}, fmt.Errorf("count holds: %w", err)
	}
	if o.SlotsAvailable-held <= 0 {
		return model.Offer{}, ErrUnavailable
	}
	return o, nil
}

// DecrementSlot atomically takes one slot.  It returns ErrExhausted when the
// offer has no slots left (or does not exist).
func (r *OfferRepo) DecrementSlot(ctx context.Context, offerID string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE group_subs SET slots_available = slots_available - 1, updated_at = UTC_TIMESTAMP()
          WHERE id = ? AND slots_available > 0`, offerID)
	if err != nil {
		return fmt.Errorf("decrement slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement slot: %w", err)
	}
	if n == 0 {
		return ErrExhausted
	}
	return nil
}

// SellerID resolves the owner of the group that lists the offer.
func (r *OfferRepo) SellerID(ctx context.Context, offerID string) (string, error) {
	var owner string
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT g.owner_id FROM group_subs o JOIN `+"`groups`"+` g ON g.id = o.group_id WHERE o.id = ?`,
		offerID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get seller: %w", err)
	}
	return owner, nil
}

// AccessInstructions returns the instructions shown to buyers after they
// redeem an access link.
func (r *OfferRepo) AccessInstructions(ctx context.Context, offerID string) (string, error) {
	var text string
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT instructions FROM access_instructions WHERE group_sub_id = ?`, offerID).Scan(&text)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get access instructions: %w", err)
	}
	return text, nil
}

// UpsertInstructions stores or replaces the access instructions of an offer.
func (r *OfferRepo) UpsertInstructions(ctx context.Context, offerID, text string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO access_instructions (group_sub_id, instructions, updated_at) VALUES (?, ?, UTC_TIMESTAMP())
         ON DUPLICATE KEY UPDATE instructions = VALUES(instructions), updated_at = VALUES(updated_at)`,
		offerID, text)
	if err != nil {
		return fmt.Errorf("upsert access instructions: %w", err)
	}
	return nil
}
