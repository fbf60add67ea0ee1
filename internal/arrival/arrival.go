// Package arrival generates the stochastic inflow of participants,
// proposals and external funding each step, and applies it to the network
// and reserve.
package arrival

import (
	"fmt"
	"math"

	"github.com/nvandessel/conviction/internal/commons"
	"github.com/nvandessel/conviction/internal/conviction"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/sampling"
)

const (
	// InvestmentScale is the scale of the exponential investment draw.
	InvestmentScale = 100.0

	// ProposalShape and ProposalLoc parameterize the requested-funds gamma draw.
	ProposalShape = 3.0
	ProposalLoc   = 0.001

	// InflowThreshold is the sentiment at or below which no external
	// funding arrives.
	InflowThreshold = 0.4

	inflowPoolScale = 10000.0
)

// Draw is the outcome of the arrival policy for one step.
type Draw struct {
	NewParticipant bool    `json:"new_participant"`
	Investment     float64 `json:"investment"`
	Tokens         float64 `json:"tokens"`
	NewProposal    bool    `json:"new_proposal"`
	FundsArrival   float64 `json:"funds_arrival"`
}

// ParticipantRate is the arrival probability (1+sentiment)/10.
func ParticipantRate(sentiment float64) float64 {
	return (1 + sentiment) / 10
}

// ProposalRate is median affinity / (1 + candidate funds / pool). It is 0
// when the pool is empty or nobody could propose.
func ProposalRate(n *graph.Network, fundingPool float64) float64 {
	if fundingPool <= 0 || len(n.Participants()) == 0 {
		return 0
	}
	return n.MedianAffinity() / (1 + n.CandidateFundsRequested()/fundingPool)
}

// InflowScale is max(1, pool/10000 * sentiment^2).
func InflowScale(fundingPool, sentiment float64) float64 {
	return math.Max(1, fundingPool/inflowPoolScale*sentiment*sentiment)
}

// Polarized maps a uniform r to 1-4(1-r)r, which piles up near 0 and 1.
func Polarized(r float64) float64 {
	return 1 - 4*(1-r)*r
}

// Generate draws this step's arrivals. Draw order is fixed: participant,
// proposal, inflow.
func Generate(n *graph.Network, reserve commons.Reserve, sentiment float64, s sampling.Sampler) Draw {
	var d Draw

	if s.Bernoulli(ParticipantRate(sentiment)) {
		d.NewParticipant = true
		d.Investment = s.Exponential(0, InvestmentScale)
		d.Tokens = reserve.DaiToTokens(d.Investment)
	}

	d.NewProposal = s.Bernoulli(ProposalRate(n, reserve.FundingPool()))

	if sentiment > InflowThreshold {
		d.FundsArrival = s.Exponential(0, InflowScale(reserve.FundingPool(), sentiment))
	}
	return d
}

// Options parameterize graph mutation.
type Options struct {
	FundingPool  float64
	TokenSupply  float64
	ScaleFactor  float64
	ConflictRate float64
	Trigger      conviction.TriggerFunc
}

// Applied reports the nodes created by Apply; -1 means none.
type Applied struct {
	Participant int `json:"participant"`
	Proposal    int `json:"proposal"`
}

// Apply mutates the network for a draw. A new participant gets a uniform
// sentiment, zero-token support edges to every proposal and an influence
// edge from every existing participant. A new proposal is made by a uniform
// participant (affinity 1, everyone else polarized) and conflicts with each
// open proposal with probability ConflictRate. Every proposal then ages by
// one step.
func Apply(n *graph.Network, d Draw, opts Options, s sampling.Sampler) (Applied, error) {
	applied := Applied{Participant: -1, Proposal: -1}
	polarized := func(int, int) float64 { return Polarized(s.Float64()) }

	if d.NewParticipant {
		existing := n.Participants()
		id := n.AddParticipant(models.Participant{Sentiment: s.Float64(), Holdings: d.Tokens}, polarized)
		for _, i := range existing {
			if err := n.AddInfluence(i, id, s.Float64()); err != nil {
				return applied, fmt.Errorf("new participant: %w", err)
			}
		}
		applied.Participant = id
	}

	if participants := n.Participants(); d.NewProposal && len(participants) > 0 {
		funds := s.Gamma(ProposalShape, ProposalLoc, opts.FundingPool*opts.ScaleFactor/100)
		proposer := participants[s.IntN(len(participants))]
		open := n.Proposals(models.StatusCandidate, models.StatusActive)

		p := models.NewProposal(funds, proposer)
		if opts.Trigger != nil {
			p.Trigger = opts.Trigger(funds, opts.FundingPool, opts.TokenSupply)
		}
		id := n.AddProposal(p, func(i, j int) float64 {
			if i == proposer {
				return 1
			}
			return polarized(i, j)
		})
		for _, other := range open {
			if !s.Bernoulli(opts.ConflictRate) {
				continue
			}
			if err := n.AddConflict(id, other, s.Float64()); err != nil {
				return applied, fmt.Errorf("new proposal: %w", err)
			}
		}
		applied.Proposal = id
	}

	for _, j := range n.Proposals() {
		n.Proposal(j).Age++
	}
	return applied, nil
}

// Fund applies a draw to the reserve: the investment is deposited and the
// inflow added to the funding pool.
func Fund(reserve commons.Reserve, d Draw) error {
	if d.NewParticipant {
		if _, _, err := reserve.Deposit(d.Investment); err != nil {
			return fmt.Errorf("deposit investment: %w", err)
		}
	}
	if d.FundsArrival > 0 {
		if err := reserve.AddFunding(d.FundsArrival); err != nil {
			return fmt.Errorf("funding inflow: %w", err)
		}
	}
	return nil
}
