package domain

import "github.com/shopspring/decimal"

// Fixed-point scales used throughout the ledger. All monetary values are
// decimals holding integer counts at their scale: USD6 values count
// micro-dollars, oracle prices count 1e-8 dollars, NAV per share counts
// 1e-18 units.
var (
	PriceScale = decimal.New(1, 8)  // oracle price: USD per unit, 1e8
	USD6Scale  = decimal.New(1, 6)  // USD6: micro-dollars
	NavScale   = decimal.New(1, 18) // NAV per share: 1e18 = unchanged
)

// NavUnchanged is the default final NAV per share of a batch (1e18, meaning
// the batch settled at exactly its principal value).
var NavUnchanged = NavScale

// Pow10 returns 10^n as a decimal.
func Pow10(n int32) decimal.Decimal {
	return decimal.New(1, n)
}

// MulDivFloor computes floor(a*b/c) exactly. Operands must be non-negative;
// the quotient is truncated toward zero, which equals flooring for the
// non-negative values this ledger works with.
func MulDivFloor(a, b, c decimal.Decimal) (decimal.Decimal, error) {
	if c.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q, nil
}

// EntryValueUSD6 converts an asset-native amount into USD6 using an oracle
// price at the 1e8 scale: amount * price / 10^(decimals+2), floored.
func EntryValueUSD6(amount, price decimal.Decimal, decimals int32) (decimal.Decimal, error) {
	if price.IsZero() {
		return decimal.Zero, ErrOraclePriceZero
	}
	return MulDivFloor(amount, price, Pow10(decimals+2))
}

// UnitsForUSD6 is the inverse conversion: how many asset-native units are
// worth usd6 at the given 1e8 price, floored.
func UnitsForUSD6(usd6, price decimal.Decimal, decimals int32) (decimal.Decimal, error) {
	if price.IsZero() {
		return decimal.Zero, ErrOraclePriceZero
	}
	return MulDivFloor(usd6, Pow10(decimals+2), price)
}
