// Package lifecycle moves proposals through their status machine:
//
//	candidate -> active     accepted for funding
//	candidate -> failed     staked tokens fell below min support
//	active    -> completed  random draw, less likely for large grants
//	active    -> failed     random draw if not completed
//
// Every transition goes through graph.Network.SetStatus, so anything outside
// the table fails with models.ErrIllegalTransition.
package lifecycle

import (
	"fmt"
	"math"

	"github.com/nvandessel/conviction/internal/commons"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/sampling"
)

// Rates are the base rates of the outcome draw. A proposal completes with
// probability 1/(Completion + ln(funds)) and otherwise fails with
// probability 1/(Failure + ln(funds)).
type Rates struct {
	Completion float64
	Failure    float64
}

// Outcomes is the result of one outcome draw.
type Outcomes struct {
	Completed []int `json:"completed"`
	Failed    []int `json:"failed"`
	// Outstanding is the funds requested by every proposal that was drawn.
	Outstanding float64 `json:"outstanding"`
}

// Activate funds the accepted proposals: each moves to active, stops
// tracking conviction, has every incoming support edge reset to zero tokens
// and untracked conviction, and has its funds spent from the reserve.
func Activate(n *graph.Network, accepted []int, reserve commons.Reserve) error {
	for _, j := range accepted {
		p := n.Proposal(j)
		if p == nil {
			return fmt.Errorf("activate: proposal %d not found", j)
		}
		if err := p.Status.CheckTransition(models.StatusActive); err != nil {
			return fmt.Errorf("activate proposal %d: %w", j, err)
		}
		if err := reserve.Spend(p.FundsRequested); err != nil {
			return fmt.Errorf("activate proposal %d: %w", j, err)
		}
		if err := n.SetStatus(j, models.StatusActive); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
		p.Conviction = models.Untracked()
		for _, i := range n.Participants() {
			e := n.Support(i, j)
			e.Tokens = 0
			e.Conviction = models.Untracked()
		}
	}
	return nil
}

// FailUnsupported moves the given candidates to failed.
func FailUnsupported(n *graph.Network, ids []int) error {
	for _, j := range ids {
		if err := n.SetStatus(j, models.StatusFailed); err != nil {
			return fmt.Errorf("fail unsupported: %w", err)
		}
	}
	return nil
}

// OutcomeProbability returns 1/(base + ln(funds)) limited to [0, 1].
func OutcomeProbability(base, funds float64) float64 {
	p := 1 / (base + math.Log(funds))
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	return math.Min(p, 1)
}

// DrawOutcomes decides which active proposals complete or fail this step.
// Proposals listed in skip (activated earlier in the same step) are not
// drawn. Completion is drawn first; failure only for those not completed.
func DrawOutcomes(n *graph.Network, rates Rates, skip []int, s sampling.Sampler) Outcomes {
	skipped := make(map[int]bool, len(skip))
	for _, j := range skip {
		skipped[j] = true
	}

	var out Outcomes
	for _, j := range n.Proposals(models.StatusActive) {
		if skipped[j] {
			continue
		}
		funds := n.Proposal(j).FundsRequested
		out.Outstanding += funds

		switch {
		case s.Bernoulli(OutcomeProbability(rates.Completion, funds)):
			out.Completed = append(out.Completed, j)
		case s.Bernoulli(OutcomeProbability(rates.Failure, funds)):
			out.Failed = append(out.Failed, j)
		}
	}
	return out
}

// Resolve applies drawn outcomes to the network.
func Resolve(n *graph.Network, out Outcomes) error {
	for _, j := range out.Completed {
		if err := n.SetStatus(j, models.StatusCompleted); err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
	}
	for _, j := range out.Failed {
		if err := n.SetStatus(j, models.StatusFailed); err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
	}
	return nil
}
