package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// creditRepository implements domain.CreditRepository
type creditRepository struct {
	db *DB
}

// NewCreditRepository creates a new credit repository
func NewCreditRepository(db *DB) domain.CreditRepository {
	return &creditRepository{db: db}
}

// Append persists a new credit at the end of the owner's list
func (r *creditRepository) Append(ctx context.Context, credit *domain.ProfitCredit) error {
	query := `
		INSERT INTO credits (id, owner_principal, amount_usd6, unlock_at, claimed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		credit.ID,
		credit.Owner,
		credit.AmountUSD6.String(),
		credit.UnlockAt,
		credit.Claimed,
		credit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append credit: %w", err)
	}
	return nil
}

// GetByOwnerIndex retrieves the owner's credit at the given list index
func (r *creditRepository) GetByOwnerIndex(ctx context.Context, owner string, index int) (*domain.ProfitCredit, error) {
	if index < 0 {
		return nil, domain.ErrNotFound
	}
	query := `
		SELECT id, owner_principal, amount_usd6, unlock_at, claimed, created_at
		FROM credits
		WHERE owner_principal = $1
		ORDER BY seq
		OFFSET $2 LIMIT 1
	`
	credit, err := scanCredit(r.db.QueryRowContext(ctx, query, owner, index))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credit by index: %w", err)
	}
	return credit, nil
}

// ListByOwner retrieves all credits of an owner in append order
func (r *creditRepository) ListByOwner(ctx context.Context, owner string) ([]*domain.ProfitCredit, error) {
	query := `
		SELECT id, owner_principal, amount_usd6, unlock_at, claimed, created_at
		FROM credits
		WHERE owner_principal = $1
		ORDER BY seq
	`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list credits: %w", err)
	}
	defer rows.Close()

	var credits []*domain.ProfitCredit
	for rows.Next() {
		credit, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit: %w", err)
		}
		credits = append(credits, credit)
	}
	return credits, rows.Err()
}

// Update persists credit mutations
func (r *creditRepository) Update(ctx context.Context, credit *domain.ProfitCredit) error {
	query := `UPDATE credits SET claimed = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, credit.ID, credit.Claimed)
	if err != nil {
		return fmt.Errorf("failed to update credit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanCredit(row rowScanner) (*domain.ProfitCredit, error) {
	var credit domain.ProfitCredit
	var amountStr string

	if err := row.Scan(
		&credit.ID,
		&credit.Owner,
		&amountStr,
		&credit.UnlockAt,
		&credit.Claimed,
		&credit.CreatedAt,
	); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount_usd6: %w", err)
	}
	credit.AmountUSD6 = amount
	return &credit, nil
}
