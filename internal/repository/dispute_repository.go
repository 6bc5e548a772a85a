package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/groupshare/internal/model"
)

// DisputeRepo stores buyer disputes.
type DisputeRepo struct{ db *sql.DB }

func NewDisputeRepo(db *sql.DB) *DisputeRepo { return &DisputeRepo{db: db} }

// FindOpenByPurchase returns the open dispute raised for a purchase, or
// ErrNotFound.
func (r *DisputeRepo) FindOpenByPurchase(ctx context.Context, purchaseID string) (model.Dispute, error) {
	var (
		d     model.Dispute
		txnID sql.NullString
	)
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, reporter_id, reported_entity_type, reported_entity_id, transaction_id, purchase_record_id,
                dispute_type, description, status, resolution_deadline, created_at
           FROM disputes WHERE purchase_record_id = ? AND status = ? ORDER BY created_at LIMIT 1`,
		purchaseID, model.DisputeOpen).Scan(&d.ID, &d.ReporterID, &d.ReportedEntityType, &d.ReportedEntityID,
		&txnID, &d.PurchaseRecordID, &d.DisputeType, &d.Description, &d.Status, &d.ResolutionDeadline, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Dispute{}, ErrNotFound
		}
		return model.Dispute{}, fmt.Errorf("find dispute: %w", err)
	}
	d.TransactionID = stringPtr(txnID)
	return d, nil
}

// Create inserts a dispute.
func (r *DisputeRepo) Create(ctx context.Context, d *model.Dispute) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO disputes
        (id, reporter_id, reported_entity_type, reported_entity_id, transaction_id, purchase_record_id,
         dispute_type, description, status, evidence_required, resolution_deadline, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		d.ID, d.ReporterID, d.ReportedEntityType, d.ReportedEntityID, nullString(d.TransactionID), d.PurchaseRecordID,
		d.DisputeType, d.Description, d.Status, d.ResolutionDeadline, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}
