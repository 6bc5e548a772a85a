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

// GroupRepo manages sharing groups.  `groups` is a reserved word in MySQL 8
// and is always quoted.
type GroupRepo struct{ db *sql.DB }

func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{db: db} }

// Create inserts a group.  Names are unique per owner.
func (r *GroupRepo) Create(ctx context.Context, g *model.Group) error {
	g.Name = strings.TrimSpace(g.Name)
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO `groups` (id, owner_id, name, description, created_at) VALUES (?,?,?,?,?)",
		g.ID, g.OwnerID, g.Name, g.Description, g.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// GetByID loads a group.
func (r *GroupRepo) GetByID(ctx context.Context, id string) (model.Group, error) {
	var g model.Group
	err := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT id, owner_id, name, description, created_at FROM `groups` WHERE id = ?", id).
		Scan(&g.ID, &g.OwnerID, &g.Name, &g.Description, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Group{}, ErrNotFound
		}
		return model.Group{}, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// ListByOwner returns the groups owned by ownerID ordered by name.
func (r *GroupRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Group, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		"SELECT id, owner_id, name, description, created_at FROM `groups` WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	out := make([]model.Group, 0)
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Update writes the group's name and description.  A name already used by
// the same owner yields ErrConflict.
func (r *GroupRepo) Update(ctx context.Context, g *model.Group) error {
	g.Name = strings.TrimSpace(g.Name)
	res, err := conn(ctx, r.db).ExecContext(ctx,
		"UPDATE `groups` SET name = ?, description = ? WHERE id = ?", g.Name, g.Description, g.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return fmt.Errorf("update group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, g.ID); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a group.  Groups that still carry offers are kept and
// ErrConflict is returned; offers are deactivated rather than deleted, so
// the foreign key on group_subs is what enforces this.
func (r *GroupRepo) Delete(ctx context.Context, id string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, "DELETE FROM `groups` WHERE id = ?", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("delete group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
