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

// receiptRepository implements domain.ReceiptRepository
type receiptRepository struct {
	db *DB
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *DB) domain.ReceiptRepository {
	return &receiptRepository{db: db}
}

// Create persists a new receipt
func (r *receiptRepository) Create(ctx context.Context, receipt *domain.DepositReceipt) error {
	query := `
		INSERT INTO receipts (id, owner_principal, asset, principal, entry_value_usd6, shares, lock_until, withdrawn, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		receipt.ID,
		receipt.Owner,
		receipt.Asset,
		receipt.Principal.String(),
		receipt.EntryValueUSD6.String(),
		receipt.Shares.String(),
		receipt.LockUntil,
		receipt.Withdrawn,
		receipt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	return nil
}

// GetByID retrieves a receipt by its ID
func (r *receiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DepositReceipt, error) {
	query := `
		SELECT id, owner_principal, asset, principal, entry_value_usd6, shares, lock_until, withdrawn, created_at
		FROM receipts
		WHERE id = $1
	`
	receipt, err := scanReceipt(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get receipt by ID: %w", err)
	}
	return receipt, nil
}

// Update persists receipt mutations
func (r *receiptRepository) Update(ctx context.Context, receipt *domain.DepositReceipt) error {
	query := `UPDATE receipts SET withdrawn = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, receipt.ID, receipt.Withdrawn)
	if err != nil {
		return fmt.Errorf("failed to update receipt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByOwner retrieves all receipts of an owner
func (r *receiptRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.DepositReceipt, error) {
	query := `
		SELECT id, owner_principal, asset, principal, entry_value_usd6, shares, lock_until, withdrawn, created_at
		FROM receipts
		WHERE owner_principal = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*domain.DepositReceipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}

// TotalPrincipal sums principal over non-withdrawn receipts of an asset
func (r *receiptRepository) TotalPrincipal(ctx context.Context, asset string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(principal), 0)
		FROM receipts
		WHERE asset = $1 AND withdrawn = FALSE
	`
	var totalStr string
	if err := r.db.QueryRowContext(ctx, query, asset).Scan(&totalStr); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum principal: %w", err)
	}
	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse principal total: %w", err)
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReceipt(row rowScanner) (*domain.DepositReceipt, error) {
	var receipt domain.DepositReceipt
	var principalStr, entryStr, sharesStr string

	if err := row.Scan(
		&receipt.ID,
		&receipt.Owner,
		&receipt.Asset,
		&principalStr,
		&entryStr,
		&sharesStr,
		&receipt.LockUntil,
		&receipt.Withdrawn,
		&receipt.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if receipt.Principal, err = decimal.NewFromString(principalStr); err != nil {
		return nil, fmt.Errorf("failed to parse principal: %w", err)
	}
	if receipt.EntryValueUSD6, err = decimal.NewFromString(entryStr); err != nil {
		return nil, fmt.Errorf("failed to parse entry_value_usd6: %w", err)
	}
	if receipt.Shares, err = decimal.NewFromString(sharesStr); err != nil {
		return nil, fmt.Errorf("failed to parse shares: %w", err)
	}
	return &receipt, nil
}
