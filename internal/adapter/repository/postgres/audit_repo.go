package postgres

import (
	"context"
	"fmt"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// auditRepository implements domain.AuditRepository
type auditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) domain.AuditRepository {
	return &auditRepository{db: db}
}

// Append persists a new audit record
func (r *auditRepository) Append(ctx context.Context, record *domain.AuditRecord) error {
	query := `
		INSERT INTO audit_records (id, operation, batch_id, actor, detail, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Operation,
		record.BatchID,
		record.Actor,
		record.Detail,
		record.At,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// ListByBatch retrieves audit records for a batch in append order
func (r *auditRepository) ListByBatch(ctx context.Context, batchID int64) ([]*domain.AuditRecord, error) {
	query := `
		SELECT id, operation, batch_id, actor, detail, at
		FROM audit_records
		WHERE batch_id = $1
		ORDER BY seq
	`
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var record domain.AuditRecord
		if err := rows.Scan(
			&record.ID,
			&record.Operation,
			&record.BatchID,
			&record.Actor,
			&record.Detail,
			&record.At,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}
