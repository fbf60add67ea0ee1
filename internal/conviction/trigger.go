// Package conviction computes per-edge and per-proposal conviction, the
// dynamic acceptance threshold, and the budget-constrained selection of
// proposals to fund.
package conviction

import "math"

// Unreachable is the threshold of a proposal that cannot pass: it asks for
// at least a beta share of the pool, or the pool is empty.
const Unreachable = math.MaxFloat64

// TriggerFunc maps requested funds, the funding pool and the token supply to
// the conviction a proposal needs to be accepted.
type TriggerFunc func(requested, fundingPool, supply float64) float64

// Threshold holds the parameters of the default trigger function.
type Threshold struct {
	// Alpha is the conviction decay factor.
	Alpha float64
	// Beta is the largest share of the pool a single proposal may request.
	Beta float64
	// Rho scales the threshold.
	Rho float64
}

// Compute returns rho*supply / ((1-alpha) * (beta-share)^2) where
// share = requested/fundingPool, or Unreachable when share >= beta.
func (t Threshold) Compute(requested, fundingPool, supply float64) float64 {
	if fundingPool <= 0 {
		return Unreachable
	}
	share := requested / fundingPool
	if share >= t.Beta {
		return Unreachable
	}
	gap := t.Beta - share
	v := t.Rho * supply / ((1 - t.Alpha) * gap * gap)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return Unreachable
	}
	return v
}

// Func adapts t to a TriggerFunc.
func (t Threshold) Func() TriggerFunc {
	return t.Compute
}
