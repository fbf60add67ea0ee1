// Package sentiment applies the feedback forces that move participant and
// commons-wide sentiment, and the affinity decay between conflicting
// proposals.
//
// Sentiment is capped at models.MaxSentiment after every update. It has no
// lower floor: failure forces can push it below zero.
package sentiment

import (
	"math"

	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/sampling"
)

// EngagementRate scales a participant's sentiment into the probability that
// it changes its holdings in a step.
const EngagementRate = 0.3

// Update returns min(s*(1-decay) + force, MaxSentiment).
func Update(s, force, decay float64) float64 {
	return math.Min(s*(1-decay)+force, models.MaxSentiment)
}

// OutcomeForce is (completed - failed) / outstanding funds. With nothing
// outstanding the force is 1; a force outside [0, 1] counts as 0.
func OutcomeForce(completed, failed, outstanding float64) float64 {
	force := 1.0
	if outstanding > 0 {
		force = (completed - failed) / outstanding
	}
	return clampedForce(force)
}

// FundingForce is the share of candidate funds accepted this step. A ratio
// outside [0, 1], or one with no candidate funds, counts as 0.
func FundingForce(accepted, candidate float64) float64 {
	if candidate <= 0 {
		return 0
	}
	return clampedForce(accepted / candidate)
}

func clampedForce(f float64) float64 {
	if f < 0 || f > 1 || math.IsNaN(f) {
		return 0
	}
	return f
}

// Completion applies the effects of proposal j completing: every proposal
// in conflict with j has each participant's affinity to it scaled by
// (1 - weight), then each participant's sentiment moves by its affinity to j.
// Conflicting proposals that are already terminal are skipped unless
// decayTerminal is set.
func Completion(n *graph.Network, j int, decayTerminal bool) {
	participants := n.Participants()
	for _, link := range n.Conflicts(j) {
		if !decayTerminal && n.Proposal(link.Other).Status.IsTerminal() {
			continue
		}
		for _, i := range participants {
			e := n.Support(i, link.Other)
			e.Affinity *= 1 - link.Weight
		}
	}
	for _, i := range participants {
		p := n.Participant(i)
		p.Sentiment = Update(p.Sentiment, n.Support(i, j).Affinity, 0)
	}
}

// Failure moves each participant's sentiment down by its affinity to j.
func Failure(n *graph.Network, j int) {
	for _, i := range n.Participants() {
		p := n.Participant(i)
		p.Sentiment = Update(p.Sentiment, -n.Support(i, j).Affinity, 0)
	}
}

// Acceptance applies the force of proposals becoming active. For each
// accepted j and participant i with more than one support edge to proposals
// outside the accepted set, the force is affinity(i,j) minus sensitivity
// times the largest of those other affinities; otherwise it is 0. Every
// proposal outside the accepted set counts, whatever its status.
func Acceptance(n *graph.Network, accepted []int, sensitivity float64) {
	isAccepted := make(map[int]bool, len(accepted))
	for _, j := range accepted {
		isAccepted[j] = true
	}
	var others []int
	for _, j := range n.Proposals() {
		if !isAccepted[j] {
			others = append(others, j)
		}
	}

	for _, j := range accepted {
		for _, i := range n.Participants() {
			p := n.Participant(i)
			p.Sentiment = Update(p.Sentiment, AcceptanceForce(n, i, j, others, sensitivity), 0)
		}
	}
}

// AcceptanceForce is the acceptance force on participant i for proposal j,
// given the proposals outside the accepted set.
func AcceptanceForce(n *graph.Network, i, j int, others []int, sensitivity float64) float64 {
	if len(others) <= 1 {
		return 0
	}
	best := math.Inf(-1)
	for _, k := range others {
		best = math.Max(best, n.Support(i, k).Affinity)
	}
	return n.Support(i, j).Affinity - sensitivity*best
}

// Engagement draws whether a participant with sentiment s engages this step
// and, if so, the resulting holdings change rand*(s - sensitivity).
func Engagement(s, sensitivity float64, smp sampling.Sampler) (float64, bool) {
	if !smp.Bernoulli(EngagementRate * s) {
		return 0, false
	}
	return smp.Float64() * (s - sensitivity), true
}
