// Package bootstrap builds the initial network of a run: hatchers holding
// the hatch supply, the first proposals, and random conflict and social
// networks between them.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/nvandessel/conviction/internal/arrival"
	"github.com/nvandessel/conviction/internal/commons"
	"github.com/nvandessel/conviction/internal/conviction"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/sampling"
)

// ErrNoParticipants is returned when a network would start empty.
var ErrNoParticipants = errors.New("bootstrap needs at least one participant")

// Options describe the initial network.
type Options struct {
	Participants int
	Proposals    int

	// Holdings is each hatcher's nonvesting balance.
	Holdings float64

	// The hatch supply is split evenly into vesting allocations.
	VestingCliffDays    int
	VestingHalfLifeDays int

	ConflictRate  float64
	InfluenceRate float64
	ScaleFactor   float64
	Trigger       conviction.TriggerFunc
}

// Build creates the initial network against the reserve's opening state.
func Build(opts Options, reserve commons.Reserve, s sampling.Sampler) (*graph.Network, error) {
	if opts.Participants <= 0 {
		return nil, ErrNoParticipants
	}
	if opts.Proposals < 0 {
		return nil, fmt.Errorf("bootstrap: negative proposal count %d", opts.Proposals)
	}

	n := graph.New()
	polarized := func(int, int) float64 { return arrival.Polarized(s.Float64()) }
	share := reserve.TokenSupply() / float64(opts.Participants)

	for k := 0; k < opts.Participants; k++ {
		n.AddParticipant(models.Participant{
			Sentiment: s.Float64(),
			Holdings:  opts.Holdings,
			Vesting: &models.Vesting{
				Amount:       share,
				CliffDays:    opts.VestingCliffDays,
				HalfLifeDays: opts.VestingHalfLifeDays,
			},
		}, polarized)
	}

	pool := reserve.FundingPool()
	for k := 0; k < opts.Proposals; k++ {
		funds := s.Gamma(arrival.ProposalShape, arrival.ProposalLoc, pool*opts.ScaleFactor/100)
		p := models.NewProposal(funds, -1)
		if opts.Trigger != nil {
			p.Trigger = opts.Trigger(funds, pool, reserve.TokenSupply())
		}
		n.AddProposal(p, polarized)
	}

	if err := conflictNetwork(n, opts.ConflictRate, s); err != nil {
		return nil, err
	}
	if err := socialNetwork(n, opts.InfluenceRate, s); err != nil {
		return nil, err
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return n, nil
}

// conflictNetwork links each unordered proposal pair with probability rate.
func conflictNetwork(n *graph.Network, rate float64, s sampling.Sampler) error {
	proposals := n.Proposals()
	for a := 0; a < len(proposals); a++ {
		for b := a + 1; b < len(proposals); b++ {
			if !s.Bernoulli(rate) {
				continue
			}
			if err := n.AddConflict(proposals[a], proposals[b], s.Float64()); err != nil {
				return fmt.Errorf("conflict network: %w", err)
			}
		}
	}
	return nil
}

// socialNetwork links each ordered participant pair with probability rate.
func socialNetwork(n *graph.Network, rate float64, s sampling.Sampler) error {
	participants := n.Participants()
	for _, i := range participants {
		for _, k := range participants {
			if i == k || !s.Bernoulli(rate) {
				continue
			}
			if err := n.AddInfluence(i, k, s.Float64()); err != nil {
				return fmt.Errorf("social network: %w", err)
			}
		}
	}
	return nil
}
