package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "admin", cfg.Principals.Admin)
	assert.Equal(t, "keeper", cfg.Principals.Keeper)
	assert.Equal(t, "USDC", cfg.Assets.Stable)
	assert.Equal(t, int32(18), cfg.Assets.YieldDecimals)
	assert.Equal(t, 30, cfg.Vault.DefaultLockDays)

	// Half the treasury value is held in reserve by default.
	assert.Equal(t, int64(1), cfg.Treasury.AlphaNum)
	assert.Equal(t, int64(2), cfg.Treasury.AlphaDen)

	assert.Equal(t, int64(2000), cfg.Escrow.FeeBps)
	assert.Equal(t, 7, cfg.Escrow.CreditUnlockDays)
	require.NotNil(t, cfg.Escrow.AbsorbLosses)
	assert.True(t, *cfg.Escrow.AbsorbLosses)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("treasury:\n  alpha_num: 1\n  alpha_den: 4\nescrow:\n  fee_bps: 500\n  absorb_losses: false\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.Treasury.AlphaNum)
	assert.Equal(t, int64(4), cfg.Treasury.AlphaDen)
	assert.Equal(t, int64(500), cfg.Escrow.FeeBps)
	require.NotNil(t, cfg.Escrow.AbsorbLosses)
	assert.False(t, *cfg.Escrow.AbsorbLosses)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VAULTCORE_ADMIN", "ops")
	t.Setenv("VAULTCORE_FEE_BPS", "1500")
	t.Setenv("VAULTCORE_IN_MEMORY", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "ops", cfg.Principals.Admin)
	assert.Equal(t, int64(1500), cfg.Escrow.FeeBps)
	assert.True(t, cfg.Database.InMemory)
}

func TestValidate_Rejects(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	cfg.Treasury.AlphaNum = 3
	cfg.Treasury.AlphaDen = 2
	assert.Error(t, cfg.Validate())

	cfg.Treasury.AlphaNum = 1
	cfg.Escrow.FeeBps = 20_000
	assert.Error(t, cfg.Validate())
}
