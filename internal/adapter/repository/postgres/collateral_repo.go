package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// collateralizationRepository implements domain.CollateralizationRepository
type collateralizationRepository struct {
	db *DB
}

// NewCollateralizationRepository creates a new collateralization repository
func NewCollateralizationRepository(db *DB) domain.CollateralizationRepository {
	return &collateralizationRepository{db: db}
}

// Get retrieves the record for a receipt
func (r *collateralizationRepository) Get(ctx context.Context, receiptID uuid.UUID) (*domain.CollateralizationRecord, error) {
	query := `
		SELECT receipt_id, status, amount_usd6, registered, attempts, updated_at
		FROM collateralizations
		WHERE receipt_id = $1
	`
	record, err := scanCollateralization(r.db.QueryRowContext(ctx, query, receiptID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get collateralization record: %w", err)
	}
	return record, nil
}

// Put creates or replaces the record for a receipt
func (r *collateralizationRepository) Put(ctx context.Context, record *domain.CollateralizationRecord) error {
	query := `
		INSERT INTO collateralizations (receipt_id, status, amount_usd6, registered, attempts, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (receipt_id) DO UPDATE
		SET status = EXCLUDED.status, amount_usd6 = EXCLUDED.amount_usd6, registered = EXCLUDED.registered, attempts = EXCLUDED.attempts, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ReceiptID,
		string(record.Status),
		record.AmountUSD6.String(),
		record.Registered,
		record.Attempts,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put collateralization record: %w", err)
	}
	return nil
}

// ListShortfalls retrieves all records still in shortfall
func (r *collateralizationRepository) ListShortfalls(ctx context.Context) ([]*domain.CollateralizationRecord, error) {
	query := `
		SELECT receipt_id, status, amount_usd6, registered, attempts, updated_at
		FROM collateralizations
		WHERE status = $1
		ORDER BY updated_at
	`
	rows, err := r.db.QueryContext(ctx, query, string(domain.CollateralizationShortfall))
	if err != nil {
		return nil, fmt.Errorf("failed to list shortfalls: %w", err)
	}
	defer rows.Close()

	var records []*domain.CollateralizationRecord
	for rows.Next() {
		record, err := scanCollateralization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collateralization record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanCollateralization(row rowScanner) (*domain.CollateralizationRecord, error) {
	var record domain.CollateralizationRecord
	var status string
	var amountStr string

	if err := row.Scan(
		&record.ReceiptID,
		&status,
		&amountStr,
		&record.Registered,
		&record.Attempts,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}

	record.Status = domain.CollateralizationStatus(status)
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount_usd6: %w", err)
	}
	record.AmountUSD6 = amount
	return &record, nil
}
