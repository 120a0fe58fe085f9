package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Principals struct {
		Admin    string `yaml:"admin"`
		Keeper   string `yaml:"keeper"`
		Vault    string `yaml:"vault"`
		Treasury string `yaml:"treasury"`
		Escrow   string `yaml:"escrow"`
	} `yaml:"principals"`
	Assets struct {
		Stable          string `yaml:"stable"`
		Yield           string `yaml:"yield"`
		YieldDecimals   int32  `yaml:"yield_decimals"`
		ReserveDecimals int32  `yaml:"reserve_decimals"`
	} `yaml:"assets"`
	Vault struct {
		DefaultLockDays int `yaml:"default_lock_days"`
	} `yaml:"vault"`
	Treasury struct {
		AlphaNum    int64 `yaml:"alpha_num"`
		AlphaDen    int64 `yaml:"alpha_den"`
		SlippageBps int64 `yaml:"slippage_bps"`
	} `yaml:"treasury"`
	Escrow struct {
		FeeBps           int64 `yaml:"fee_bps"`
		CreditUnlockDays int   `yaml:"credit_unlock_days"`
		AbsorbLosses     *bool `yaml:"absorb_losses"`
	} `yaml:"escrow"`
	Schedule struct {
		RetryCron     string `yaml:"retry_cron"`
		RebalanceCron string `yaml:"rebalance_cron"`
		RollCron      string `yaml:"roll_cron"`
	} `yaml:"schedule"`
	Database struct {
		DSN      string `yaml:"dsn"`
		InMemory bool   `yaml:"in_memory"`
	} `yaml:"database"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("VAULTCORE_ADMIN"); v != "" {
		cfg.Principals.Admin = v
	}
	if v := os.Getenv("VAULTCORE_KEEPER"); v != "" {
		cfg.Principals.Keeper = v
	}
	if v := os.Getenv("VAULTCORE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("VAULTCORE_IN_MEMORY"); v != "" {
		cfg.Database.InMemory = v == "1" || v == "true"
	}
	if v := os.Getenv("VAULTCORE_FEE_BPS"); v != "" {
		if bps, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Escrow.FeeBps = bps
		}
	}
	if v := os.Getenv("VAULTCORE_SLIPPAGE_BPS"); v != "" {
		if bps, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Treasury.SlippageBps = bps
		}
	}
	if v := os.Getenv("VAULTCORE_RETRY_CRON"); v != "" {
		cfg.Schedule.RetryCron = v
	}
	if v := os.Getenv("VAULTCORE_REBALANCE_CRON"); v != "" {
		cfg.Schedule.RebalanceCron = v
	}

	// Defaults
	if cfg.Principals.Admin == "" {
		cfg.Principals.Admin = "admin"
	}
	if cfg.Principals.Keeper == "" {
		cfg.Principals.Keeper = "keeper"
	}
	if cfg.Principals.Vault == "" {
		cfg.Principals.Vault = "vault"
	}
	if cfg.Principals.Treasury == "" {
		cfg.Principals.Treasury = "treasury"
	}
	if cfg.Principals.Escrow == "" {
		cfg.Principals.Escrow = "escrow"
	}
	if cfg.Assets.Stable == "" {
		cfg.Assets.Stable = "USDC"
	}
	if cfg.Assets.Yield == "" {
		cfg.Assets.Yield = "stETH"
	}
	if cfg.Assets.YieldDecimals == 0 {
		cfg.Assets.YieldDecimals = 18
	}
	if cfg.Assets.ReserveDecimals == 0 {
		cfg.Assets.ReserveDecimals = 8
	}
	if cfg.Vault.DefaultLockDays == 0 {
		cfg.Vault.DefaultLockDays = 30
	}
	if cfg.Treasury.AlphaNum == 0 {
		cfg.Treasury.AlphaNum = 1
	}
	if cfg.Treasury.AlphaDen == 0 {
		cfg.Treasury.AlphaDen = 2
	}
	if cfg.Treasury.SlippageBps == 0 {
		cfg.Treasury.SlippageBps = 50
	}
	if cfg.Escrow.FeeBps == 0 {
		cfg.Escrow.FeeBps = 2000
	}
	if cfg.Escrow.CreditUnlockDays == 0 {
		cfg.Escrow.CreditUnlockDays = 7
	}
	if cfg.Escrow.AbsorbLosses == nil {
		t := true
		cfg.Escrow.AbsorbLosses = &t
	}
	if cfg.Schedule.RetryCron == "" {
		cfg.Schedule.RetryCron = "0 */10 * * * *"
	}
	if cfg.Schedule.RebalanceCron == "" {
		cfg.Schedule.RebalanceCron = "0 0 */6 * * *"
	}
	if cfg.Schedule.RollCron == "" {
		cfg.Schedule.RollCron = "0 0 0 * * 1"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "host=localhost port=5432 user=postgres password=postgres dbname=vaultcore sslmode=disable"
	}

	return cfg, nil
}

// Validate checks that all required fields are consistent.
func (c *Config) Validate() error {
	if c.Treasury.AlphaDen <= 0 {
		return fmt.Errorf("treasury.alpha_den must be positive")
	}
	if c.Treasury.AlphaNum < 0 || c.Treasury.AlphaNum > c.Treasury.AlphaDen {
		return fmt.Errorf("treasury.alpha_num must be within [0, alpha_den]")
	}
	if c.Treasury.SlippageBps < 0 || c.Treasury.SlippageBps > 10_000 {
		return fmt.Errorf("treasury.slippage_bps must be within [0, 10000]")
	}
	if c.Escrow.FeeBps < 0 || c.Escrow.FeeBps > 10_000 {
		return fmt.Errorf("escrow.fee_bps must be within [0, 10000]")
	}
	if c.Vault.DefaultLockDays < 0 {
		return fmt.Errorf("vault.default_lock_days must not be negative")
	}
	if !c.Database.InMemory && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return nil
}

// LockDuration returns the default receipt lock as a duration.
func (c *Config) LockDuration() time.Duration {
	return time.Duration(c.Vault.DefaultLockDays) * 24 * time.Hour
}

// CreditUnlockDelay returns the profit credit unlock delay as a duration.
func (c *Config) CreditUnlockDelay() time.Duration {
	return time.Duration(c.Escrow.CreditUnlockDays) * 24 * time.Hour
}
