package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// poolRepository implements domain.PoolRepository
type poolRepository struct {
	db *DB
}

// NewPoolRepository creates a new pool repository
func NewPoolRepository(db *DB) domain.PoolRepository {
	return &poolRepository{db: db}
}

// Get retrieves a pool by name
func (r *poolRepository) Get(ctx context.Context, name string) (*domain.CollateralPool, error) {
	query := `SELECT name, balance FROM pools WHERE name = $1`

	var pool domain.CollateralPool
	var balanceStr string
	err := r.db.QueryRowContext(ctx, query, name).Scan(&pool.Name, &balanceStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool balance: %w", err)
	}
	pool.Balance = balance
	return &pool, nil
}

// SetBalance persists a pool balance, creating the pool if needed
func (r *poolRepository) SetBalance(ctx context.Context, name string, balance decimal.Decimal) error {
	query := `
		INSERT INTO pools (name, balance)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET balance = EXCLUDED.balance
	`
	if _, err := r.db.ExecContext(ctx, query, name, balance.String()); err != nil {
		return fmt.Errorf("failed to set pool balance: %w", err)
	}
	return nil
}
