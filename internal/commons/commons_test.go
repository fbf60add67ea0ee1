package commons

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHatch() Hatch {
	return Hatch{Raise: 10000, Supply: 1000, Tribute: 0.2, Kappa: 2}
}

func TestNew_SplitsRaise(t *testing.T) {
	c, err := New(testHatch())
	require.NoError(t, err)

	assert.InDelta(t, 8000, c.CollateralPool(), 1e-9)
	assert.InDelta(t, 2000, c.FundingPool(), 1e-9)
	assert.Equal(t, 1000.0, c.TokenSupply())
	// dR/dS of R = S^kappa / V0 is kappa * R / S = 2 * 8000 / 1000.
	assert.InDelta(t, 16, c.SpotPrice(), 1e-12)
}

func TestNew_RejectsBadHatch(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Hatch)
	}{
		{"zero raise", func(h *Hatch) { h.Raise = 0 }},
		{"tribute one", func(h *Hatch) { h.Tribute = 1 }},
		{"negative tribute", func(h *Hatch) { h.Tribute = -0.1 }},
		{"zero kappa", func(h *Hatch) { h.Kappa = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHatch()
			tt.edit(&h)
			_, err := New(h)
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestDeposit_PreservesInvariant(t *testing.T) {
	c, err := New(testHatch())
	require.NoError(t, err)
	v0 := math.Pow(c.TokenSupply(), 2) / c.CollateralPool()
	quote := c.DaiToTokens(100)

	tokens, price, err := c.Deposit(100)

	require.NoError(t, err)
	assert.InDelta(t, quote, tokens, 1e-9)
	assert.InDelta(t, math.Sqrt(125*8100)-1000, tokens, 1e-9)
	assert.InDelta(t, 100/tokens, price, 1e-12)
	assert.InDelta(t, v0, math.Pow(c.TokenSupply(), 2)/c.CollateralPool(), 1e-9)
	assert.InDelta(t, 2000, c.FundingPool(), 1e-9, "deposits do not touch the funding pool")
}

func TestSpotPrice_IsMarginalDepositPrice(t *testing.T) {
	c, err := New(testHatch())
	require.NoError(t, err)
	spot := c.SpotPrice()

	_, price, err := c.Deposit(0.01)

	require.NoError(t, err)
	assert.InDelta(t, spot, price, 1e-3)
	assert.Greater(t, c.SpotPrice(), spot, "buying moves the price up")
}

func TestSpend(t *testing.T) {
	c, err := New(testHatch())
	require.NoError(t, err)

	require.NoError(t, c.Spend(500))
	assert.InDelta(t, 1500, c.FundingPool(), 1e-9)

	err = c.Spend(1500.01)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.InDelta(t, 1500, c.FundingPool(), 1e-9)

	assert.ErrorIs(t, c.Spend(-1), ErrInvalidAmount)
}

func TestSpend_RequestsSummingToPool(t *testing.T) {
	// A pool of exactly 0.3 cannot pay 0.1 then 0.2 in plain float64:
	// 0.3 - 0.1 leaves 0.19999999999999998.
	c, err := New(Hatch{Raise: 0.6, Supply: 1, Tribute: 0.5, Kappa: 2})
	require.NoError(t, err)
	require.Equal(t, 0.3, c.FundingPool())

	require.NoError(t, c.Spend(0.1))
	require.Less(t, c.FundingPool(), 0.2)
	require.NoError(t, c.Spend(0.2))

	assert.Zero(t, c.FundingPool(), "the pool is emptied, never negative")
	assert.ErrorIs(t, c.Spend(0.01), ErrInsufficientFunds)
}

func TestCovers(t *testing.T) {
	assert.True(t, Covers(100, 100))
	assert.True(t, Covers(100, 100*(1+1e-12)))
	assert.False(t, Covers(100, 100.001))
	assert.True(t, Covers(0, 1e-12))
	assert.False(t, Covers(0, 1e-6))
}

func TestAddFunding(t *testing.T) {
	c, err := New(testHatch())
	require.NoError(t, err)

	require.NoError(t, c.AddFunding(12.5))
	assert.InDelta(t, 2012.5, c.FundingPool(), 1e-9)
	assert.Error(t, c.AddFunding(math.NaN()))
	assert.Zero(t, c.DaiToTokens(-3))
}
