package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivFloor_Floors(t *testing.T) {
	// 7 * 3 / 2 = 10.5 -> 10
	got, err := MulDivFloor(decimal.NewFromInt(7), decimal.NewFromInt(3), decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(got), "got %s", got)
}

func TestMulDivFloor_DivisionByZero(t *testing.T) {
	_, err := MulDivFloor(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestEntryValueUSD6_DollarParity(t *testing.T) {
	// 1000 units at $1.00 (price=100000000, decimals=6) -> $1000.00 in USD6.
	amount := decimal.NewFromInt(1_000_000_000) // 1000 units of a 6-decimal asset
	price := decimal.NewFromInt(100_000_000)

	got, err := EntryValueUSD6(amount, price, 6)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1_000_000_000).Equal(got), "got %s", got)
}

func TestEntryValueUSD6_ZeroPrice(t *testing.T) {
	_, err := EntryValueUSD6(decimal.NewFromInt(1000), decimal.Zero, 6)
	assert.ErrorIs(t, err, ErrOraclePriceZero)
}

func TestUnitsForUSD6_RoundTrip(t *testing.T) {
	price := decimal.NewFromInt(250_000_000) // $2.50
	usd6 := decimal.NewFromInt(5_000_000)    // $5.00

	units, err := UnitsForUSD6(usd6, price, 6)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2_000_000).Equal(units), "got %s", units)

	back, err := EntryValueUSD6(units, price, 6)
	require.NoError(t, err)
	assert.True(t, usd6.Equal(back), "got %s", back)
}
