package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/groupshare/internal/model"
)

// ProfileRepo maps identity-provider subjects to local profiles.
type ProfileRepo struct{ db *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

// GetByExternalID fetches a profile by the identity provider subject.
func (r *ProfileRepo) GetByExternalID(ctx context.Context, externalID string) (model.Profile, error) {
	var p model.Profile
	err := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT id, external_auth_id, email, display_name, created_at FROM profiles WHERE external_auth_id = ? LIMIT 1",
		externalID).Scan(&p.ID, &p.ExternalAuthID, &p.Email, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Profile{}, ErrNotFound
		}
		return model.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetByID fetches a profile by its local ID.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (model.Profile, error) {
	var p model.Profile
	err := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT id, external_auth_id, email, display_name, created_at FROM profiles WHERE id = ?",
		id).Scan(&p.ID, &p.ExternalAuthID, &p.Email, &p.DisplayName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Profile{}, ErrNotFound
		}
		return model.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// GetOrCreate returns the profile for externalID, creating it on first
// sight.  A concurrent insert of the same subject is resolved by re-reading.
func (r *ProfileRepo) GetOrCreate(ctx context.Context, externalID, email string) (model.Profile, error) {
	p, err := r.GetByExternalID(ctx, externalID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.Profile{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	p = model.Profile{
		ID:             uuid.NewString(),
		ExternalAuthID: externalID,
		Email:          email,
		DisplayName:    displayNameFromEmail(email),
		CreatedAt:      time.Now().UTC(),
	}
	_, err = conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO profiles (id, external_auth_id, email, display_name, created_at) VALUES (?,?,?,?,?)",
		p.ID, p.ExternalAuthID, p.Email, p.DisplayName, p.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return r.GetByExternalID(ctx, externalID)
		}
		return model.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}

func displayNameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
