// Package commons implements the token reserve behind the funding pool: an
// augmented bonding curve split into a collateral pool backing the token
// and a funding pool that pays out accepted proposals.
package commons

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInsufficientFunds is returned when a spend exceeds the funding pool.
	ErrInsufficientFunds = errors.New("insufficient funds in funding pool")

	// ErrInvalidAmount is returned for negative or non-finite amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Tolerance is the relative slack allowed when a spend meets the pool.
const Tolerance = 1e-9

// Reserve is the token-reserve collaborator consumed by the simulation.
type Reserve interface {
	// Deposit buys tokens with amount of collateral currency and returns the
	// tokens minted and the realized price per token.
	Deposit(amount float64) (tokens, price float64, err error)

	// Spend pays amount out of the funding pool.
	Spend(amount float64) error

	// DaiToTokens quotes how many tokens amount would mint, without minting.
	DaiToTokens(amount float64) float64

	// AddFunding adds external inflow to the funding pool.
	AddFunding(amount float64) error

	// SpotPrice is the marginal price of one token on the curve.
	SpotPrice() float64

	CollateralPool() float64
	TokenSupply() float64
	FundingPool() float64
}

// Commons is a bonding curve with invariant V0 = S^kappa / R.
type Commons struct {
	collateral float64
	supply     float64
	funding    float64
	kappa      float64
	invariant  float64
}

// Hatch is the initial raise that opens a Commons.
type Hatch struct {
	// Raise is the currency collected during the hatch.
	Raise float64
	// Supply is the number of tokens minted to hatchers.
	Supply float64
	// Tribute is the share of Raise sent straight to the funding pool.
	Tribute float64
	// Kappa is the curve exponent.
	Kappa float64
}

// New opens a Commons from a completed hatch.
func New(h Hatch) (*Commons, error) {
	if h.Raise <= 0 || h.Supply <= 0 {
		return nil, fmt.Errorf("hatch raise and supply must be positive: %w", ErrInvalidAmount)
	}
	if h.Tribute < 0 || h.Tribute >= 1 {
		return nil, fmt.Errorf("hatch tribute must be in [0, 1): %w", ErrInvalidAmount)
	}
	if h.Kappa <= 0 {
		return nil, fmt.Errorf("kappa must be positive: %w", ErrInvalidAmount)
	}

	c := &Commons{
		collateral: (1 - h.Tribute) * h.Raise,
		supply:     h.Supply,
		funding:    h.Tribute * h.Raise,
		kappa:      h.Kappa,
	}
	c.invariant = math.Pow(c.supply, c.kappa) / c.collateral
	return c, nil
}

func (c *Commons) CollateralPool() float64 { return c.collateral }
func (c *Commons) TokenSupply() float64    { return c.supply }
func (c *Commons) FundingPool() float64    { return c.funding }

// SpotPrice is the marginal price of one token: kappa * R / S.
func (c *Commons) SpotPrice() float64 {
	return c.kappa * c.collateral / c.supply
}

func (c *Commons) supplyFor(collateral float64) float64 {
	return math.Pow(c.invariant*collateral, 1/c.kappa)
}

// DaiToTokens returns the tokens a deposit of amount would mint.
func (c *Commons) DaiToTokens(amount float64) float64 {
	if amount <= 0 || math.IsInf(amount, 0) || math.IsNaN(amount) {
		return 0
	}
	return c.supplyFor(c.collateral+amount) - c.supply
}

// Deposit mints tokens against amount of collateral. A zero deposit mints
// nothing and reports a zero price.
func (c *Commons) Deposit(amount float64) (float64, float64, error) {
	if err := checkAmount(amount); err != nil {
		return 0, 0, fmt.Errorf("deposit: %w", err)
	}
	if amount == 0 {
		return 0, 0, nil
	}
	newSupply := c.supplyFor(c.collateral + amount)
	minted := newSupply - c.supply
	c.collateral += amount
	c.supply = newSupply
	return minted, amount / minted, nil
}

// Covers reports whether a pool of available can pay amount. An amount over
// the pool by no more than Tolerance relative to the pool still counts, so a
// set of requests summing to the pool can be paid one at a time.
func Covers(available, amount float64) bool {
	return amount-available <= Tolerance*math.Max(1, math.Abs(available))
}

// Spend pays amount out of the funding pool. A spend within Tolerance of
// the whole pool empties it.
func (c *Commons) Spend(amount float64) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("spend: %w", err)
	}
	if !Covers(c.funding, amount) {
		return fmt.Errorf("spend %g from pool of %g: %w", amount, c.funding, ErrInsufficientFunds)
	}
	c.funding = math.Max(0, c.funding-amount)
	return nil
}

// AddFunding adds external inflow to the funding pool.
func (c *Commons) AddFunding(amount float64) error {
	if err := checkAmount(amount); err != nil {
		return fmt.Errorf("add funding: %w", err)
	}
	c.funding += amount
	return nil
}

func checkAmount(v float64) error {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %g", ErrInvalidAmount, v)
	}
	return nil
}
