package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle supplies the USD price of one asset unit at the fixed 1e8
// scale. A returned zero must be treated as ErrOraclePriceZero by every
// caller. Oracle calls are untrusted: they may fail or return stale data.
type PriceOracle interface {
	Price(ctx context.Context) (decimal.Decimal, error)
}

// SwapPool converts yield asset into stable asset using reserve-based,
// fee-adjusted pricing. The treasury computes an expected-out bound before
// committing; a failed or underfilled swap surfaces as
// ErrInsufficientLiquidity.
type SwapPool interface {
	// QuoteStableOut returns the stable output the pool would currently
	// give for yieldIn units, without executing.
	QuoteStableOut(ctx context.Context, yieldIn decimal.Decimal) (decimal.Decimal, error)

	// SwapYieldForStable executes the conversion, failing if the output
	// would be below minStableOut.
	SwapYieldForStable(ctx context.Context, yieldIn, minStableOut decimal.Decimal) (decimal.Decimal, error)
}

// ReserveController custodies the hard-asset reserve. It deals purely in
// asset-native units; the treasury values them through the reserve oracle.
type ReserveController interface {
	// Units returns the custodied hard-asset unit balance.
	Units(ctx context.Context) (decimal.Decimal, error)

	// Credit adds units to the reserve.
	Credit(ctx context.Context, units decimal.Decimal) error

	// Debit removes units from the reserve; fails if the balance is short.
	Debit(ctx context.Context, units decimal.Decimal) error
}

// TokenBank moves asset custody on behalf of the vault: pulling deposited
// principal in, releasing principal and claimed stable value out. A failed
// move is ErrTransferFailed and must leave caller state untouched.
type TokenBank interface {
	// BalanceOf returns the bank's custodied balance of an asset.
	BalanceOf(ctx context.Context, asset string) (decimal.Decimal, error)

	// Pull takes amount of asset from a holder into custody.
	Pull(ctx context.Context, asset, from string, amount decimal.Decimal) error

	// Release pays amount of asset out of custody to a recipient.
	Release(ctx context.Context, asset, to string, amount decimal.Decimal) error
}
