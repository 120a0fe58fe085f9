package seeder

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/vaultcore-backend/internal/adapter/repository/memory"
	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

func TestSeed_CreatesMissingPools(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPoolRepository()

	require.NoError(t, NewPoolSeeder(repo).Seed(ctx))

	for _, name := range []string{domain.PoolTreasury, domain.PoolEscrow} {
		pool, err := repo.Get(ctx, name)
		require.NoError(t, err, "pool %s", name)
		assert.True(t, pool.Balance.IsZero())
	}
}

func TestSeed_LeavesExistingBalancesUntouched(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPoolRepository()
	require.NoError(t, repo.SetBalance(ctx, domain.PoolTreasury, decimal.NewFromInt(42)))

	require.NoError(t, NewPoolSeeder(repo).Seed(ctx))

	pool, err := repo.Get(ctx, domain.PoolTreasury)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(42).Equal(pool.Balance))
}

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPoolRepository()
	s := NewPoolSeeder(repo)

	require.NoError(t, s.Seed(ctx))
	require.NoError(t, s.Seed(ctx))
}
