package prorata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

func usd6(dollars int64) decimal.Decimal {
	return decimal.NewFromInt(dollars).Mul(decimal.NewFromInt(1_000_000))
}

func TestSettle_ProfitWithFee(t *testing.T) {
	// Batch principal $100,000, final NAV 1.10e18, fee 2000 bps:
	// finalValue $110,000, profit $10,000, fee $2,000, user profit $8,000.
	nav := decimal.RequireFromString("1100000000000000000")

	res, err := Settle(usd6(100_000), nav, 2000, true)
	require.NoError(t, err)

	assert.True(t, usd6(110_000).Equal(res.FinalValueUSD6), "finalValue %s", res.FinalValueUSD6)
	assert.True(t, usd6(10_000).Equal(res.ProfitUSD6), "profit %s", res.ProfitUSD6)
	assert.True(t, usd6(2_000).Equal(res.FeeUSD6), "fee %s", res.FeeUSD6)
	assert.True(t, usd6(8_000).Equal(res.UserProfitUSD6), "userProfit %s", res.UserProfitUSD6)
}

func TestSettle_LossAbsorbed(t *testing.T) {
	nav := decimal.RequireFromString("900000000000000000") // 0.9e18

	res, err := Settle(usd6(100_000), nav, 2000, true)
	require.NoError(t, err)

	assert.True(t, usd6(90_000).Equal(res.FinalValueUSD6))
	assert.True(t, res.ProfitUSD6.IsZero(), "loss should be floored at zero")
	assert.True(t, res.FeeUSD6.IsZero())
	assert.True(t, res.UserProfitUSD6.IsZero())
}

func TestSettle_LossPassedThrough(t *testing.T) {
	nav := decimal.RequireFromString("900000000000000000")

	res, err := Settle(usd6(100_000), nav, 2000, false)
	require.NoError(t, err)

	assert.True(t, usd6(-10_000).Equal(res.ProfitUSD6), "profit %s", res.ProfitUSD6)
	assert.True(t, res.FeeUSD6.IsZero(), "no fee on a loss")
	assert.True(t, usd6(-10_000).Equal(res.UserProfitUSD6))
}

func TestSettle_UnchangedNavIsBreakEven(t *testing.T) {
	res, err := Settle(usd6(100_000), domain.NavUnchanged, 2000, true)
	require.NoError(t, err)

	assert.True(t, usd6(100_000).Equal(res.FinalValueUSD6))
	assert.True(t, res.ProfitUSD6.IsZero())
}

func TestSettle_ZeroNavRejected(t *testing.T) {
	_, err := Settle(usd6(100_000), decimal.Zero, 2000, true)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestShare_ProRata(t *testing.T) {
	// $8,000 user profit split 3:1.
	total := usd6(8_000)
	whole := usd6(100_000)

	a, err := Share(total, usd6(75_000), whole)
	require.NoError(t, err)
	b, err := Share(total, usd6(25_000), whole)
	require.NoError(t, err)

	assert.True(t, usd6(6_000).Equal(a), "got %s", a)
	assert.True(t, usd6(2_000).Equal(b), "got %s", b)
}

func TestShare_FlooredResidualNeverOvershoots(t *testing.T) {
	total := decimal.NewFromInt(100)
	whole := decimal.NewFromInt(3)

	sum := decimal.Zero
	for i := 0; i < 3; i++ {
		s, err := Share(total, decimal.NewFromInt(1), whole)
		require.NoError(t, err)
		sum = sum.Add(s)
	}
	assert.True(t, sum.LessThanOrEqual(total), "sum %s", sum)
}

func TestShare_ZeroWhole(t *testing.T) {
	_, err := Share(usd6(1), usd6(1), decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrDivisionByZero)
}

func TestFee_Floors(t *testing.T) {
	// 33 micro-dollars at 2000 bps -> 6.6 -> 6.
	fee := Fee(decimal.NewFromInt(33), 2000)
	assert.True(t, decimal.NewFromInt(6).Equal(fee), "got %s", fee)
}
