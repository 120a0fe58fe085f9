package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetConfig describes an allow-listed deposit asset.
// Disabling an asset blocks new deposits but never existing receipts.
type AssetConfig struct {
	Symbol       string
	Enabled      bool
	Decimals     int32
	LockDuration time.Duration
}

// DepositReceipt records a single deposit. It is created on deposit and
// mutated exactly once (Withdrawn -> true) when the principal is returned;
// every other field is immutable.
type DepositReceipt struct {
	ID             uuid.UUID
	Owner          string
	Asset          string
	Principal      decimal.Decimal // asset-native units
	EntryValueUSD6 decimal.Decimal // USD at 1e6 scale, fixed at deposit time
	Shares         decimal.Decimal // USD6-denominated claim, equals EntryValueUSD6 at issuance
	LockUntil      time.Time
	Withdrawn      bool
	CreatedAt      time.Time
}

// Validate ensures the receipt adheres to domain rules.
func (r *DepositReceipt) Validate() error {
	if r.Owner == "" || r.Asset == "" {
		return ErrNotFound
	}
	if r.Principal.LessThanOrEqual(decimal.Zero) {
		return ErrZeroAmount
	}
	if r.EntryValueUSD6.LessThanOrEqual(decimal.Zero) {
		return ErrZeroAmount
	}
	if !r.Shares.Equal(r.EntryValueUSD6) {
		return ErrZeroAmount
	}
	return nil
}

// ProfitCredit is a claim on realized batch profit. Created only by
// treasury-driven distribution, mutated once (Claimed -> true), terminal
// thereafter.
type ProfitCredit struct {
	ID         uuid.UUID
	Owner      string
	AmountUSD6 decimal.Decimal
	UnlockAt   time.Time
	Claimed    bool
	CreatedAt  time.Time
}

// Validate ensures the credit adheres to domain rules.
func (c *ProfitCredit) Validate() error {
	if c.Owner == "" {
		return ErrNotFound
	}
	if c.AmountUSD6.LessThanOrEqual(decimal.Zero) {
		return ErrZeroAmount
	}
	return nil
}
