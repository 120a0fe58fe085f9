package prorata

import (
	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// Share computes the floored pro-rata slice of total owned by part out of
// whole: floor(total * part / whole).
//
// Flooring means the sum of all member slices can undershoot total by a few
// micro-dollars; the residual stays in the escrow pool rather than being
// minted to anyone.
func Share(total, part, whole decimal.Decimal) (decimal.Decimal, error) {
	if whole.IsZero() {
		return decimal.Zero, domain.ErrDivisionByZero
	}
	if part.IsNegative() || total.IsNegative() {
		return decimal.Zero, domain.ErrZeroAmount
	}
	return domain.MulDivFloor(total, part, whole)
}

// Fee computes the protocol fee on a profit amount in basis points,
// floored. Negative profit carries no fee.
func Fee(profit decimal.Decimal, feeBps int64) decimal.Decimal {
	if profit.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	fee, _ := domain.MulDivFloor(profit, decimal.NewFromInt(feeBps), decimal.NewFromInt(10_000))
	return fee
}

// SettleResult is the breakdown of a batch settlement.
type SettleResult struct {
	FinalValueUSD6 decimal.Decimal
	ProfitUSD6     decimal.Decimal
	FeeUSD6        decimal.Decimal
	UserProfitUSD6 decimal.Decimal
}

// Settle computes a batch's settlement breakdown from its principal and the
// final NAV per share (1e18 scale).
//
// With absorbLosses set, negative profit is floored at zero so the treasury
// fully absorbs batch losses instead of reducing depositor principal; with
// it unset, ProfitUSD6 and UserProfitUSD6 carry the signed loss and the fee
// is still zero.
func Settle(principalUSD6, finalNavPerShare decimal.Decimal, feeBps int64, absorbLosses bool) (SettleResult, error) {
	if finalNavPerShare.LessThanOrEqual(decimal.Zero) {
		return SettleResult{}, domain.ErrZeroAmount
	}
	finalValue, err := domain.MulDivFloor(principalUSD6, finalNavPerShare, domain.NavScale)
	if err != nil {
		return SettleResult{}, err
	}

	profit := finalValue.Sub(principalUSD6)
	if profit.IsNegative() && absorbLosses {
		profit = decimal.Zero
	}
	fee := Fee(profit, feeBps)

	return SettleResult{
		FinalValueUSD6: finalValue,
		ProfitUSD6:     profit,
		FeeUSD6:        fee,
		UserProfitUSD6: profit.Sub(fee),
	}, nil
}
