package conviction

import (
	"sort"

	"github.com/nvandessel/conviction/internal/commons"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
)

// Candidate is a proposal that cleared its threshold.
type Candidate struct {
	ID         int
	Funds      float64
	Conviction float64
}

// Selection is the output of the acceptance selector.
type Selection struct {
	// Accepted lists funded proposals in selection order.
	Accepted []int
	// Triggers holds the current threshold of every proposal.
	Triggers map[int]float64
	// Rationed is true when the provisional set exceeded the pool at any point.
	Rationed bool
}

// SelectAccepted picks the candidates to fund this step.
//
// Proposals are visited in id order. A candidate older than minAge whose
// conviction exceeds its threshold is provisionally accepted. Whenever the
// provisional set no longer fits in the pool it is rationed by Ration, and
// later candidates are still added on top of the rationed set. Thresholds are
// computed for every proposal regardless of status.
//
// The remaining pool is tracked by subtracting each request in turn, the
// same way the accepted set is later spent, so a set that passes here can
// always be paid.
func SelectAccepted(n *graph.Network, minAge int, fundingPool, supply float64, trigger TriggerFunc) Selection {
	sel := Selection{Triggers: make(map[int]float64)}

	var provisional []Candidate
	remaining := fundingPool
	for _, j := range n.Proposals() {
		p := n.Proposal(j)
		threshold := trigger(p.FundsRequested, fundingPool, supply)
		sel.Triggers[j] = threshold

		if p.Status != models.StatusCandidate || p.Age <= minAge {
			continue
		}
		if !p.Conviction.Exceeds(threshold) {
			continue
		}
		v, _ := p.Conviction.Value()
		provisional = append(provisional, Candidate{ID: j, Funds: p.FundsRequested, Conviction: v})
		if commons.Covers(remaining, p.FundsRequested) {
			remaining -= p.FundsRequested
			continue
		}

		provisional = Ration(provisional, fundingPool)
		sel.Rationed = true
		remaining = fundingPool
		for _, c := range provisional {
			remaining -= c.Funds
		}
	}

	for _, c := range provisional {
		sel.Accepted = append(sel.Accepted, c.ID)
	}
	return sel
}

// Ration keeps the highest-conviction candidates that fit in the pool.
//
// Candidates are stably sorted by conviction descending and taken while the
// running total plus the next request stays strictly below the pool; the walk
// stops at the first candidate that does not fit. This is greedy rationing by
// conviction, so a pair of smaller requests can lose to one larger request
// with more conviction.
func Ration(candidates []Candidate, fundingPool float64) []Candidate {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Conviction > ordered[b].Conviction
	})

	var kept []Candidate
	var cumulative float64
	for _, c := range ordered {
		if cumulative+c.Funds >= fundingPool {
			break
		}
		kept = append(kept, c)
		cumulative += c.Funds
	}
	return kept
}
