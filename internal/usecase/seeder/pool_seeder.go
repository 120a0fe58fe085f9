package seeder

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// systemPools are the pool rows every deployment requires.
var systemPools = []string{
	domain.PoolTreasury,
	domain.PoolEscrow,
}

// PoolSeeder ensures the required collateral pools exist before the
// services start.
type PoolSeeder struct {
	repo domain.PoolRepository
}

// NewPoolSeeder creates a new PoolSeeder instance.
func NewPoolSeeder(repo domain.PoolRepository) *PoolSeeder {
	return &PoolSeeder{repo: repo}
}

// Seed creates any missing system pool with a zero balance. Existing pools
// and their balances are left untouched.
func (s *PoolSeeder) Seed(ctx context.Context) error {
	for _, name := range systemPools {
		_, err := s.repo.Get(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if err := s.repo.SetBalance(ctx, name, decimal.Zero); err != nil {
			return err
		}
	}
	return nil
}
