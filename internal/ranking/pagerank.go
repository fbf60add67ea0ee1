// Package ranking scores participants by their position in the influence
// network.
package ranking

import (
	"math"

	"github.com/nvandessel/conviction/internal/graph"
)

// PageRankConfig holds configuration for PageRank computation.
type PageRankConfig struct {
	// DampingFactor (d) is the probability of following an edge vs. teleporting.
	// Standard value: 0.85.
	DampingFactor float64

	// MaxIterations is the maximum number of power iteration steps. Default: 100.
	MaxIterations int

	// Tolerance is the convergence threshold. Default: 1e-6.
	Tolerance float64
}

// DefaultPageRankConfig returns the default PageRank configuration.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// InfluenceRank calculates a weighted PageRank over the influence edges of
// snap. An influence edge i -> j means i sways j, so rank flows from the
// influenced participant back to the influencer: participants many others
// listen to score highest.
//
// Returns participant id -> score, normalized so the top score is 1.
//
// Algorithm: power iteration
//  1. Initialize all participants with score = 1/N
//  2. For each iteration:
//     PR(v) = (1-d)/N + d * (dangling/N + sum(PR(u) * w(u,v)/out(u)))
//  3. Converge when max change < Tolerance
//  4. Normalize to [0, 1] range
func InfluenceRank(snap graph.Snapshot, config PageRankConfig) map[int]float64 {
	n := len(snap.Participants)
	scores := make(map[int]float64, n)
	if n == 0 {
		return scores
	}

	ids := make([]int, 0, n)
	isParticipant := make(map[int]bool, n)
	for _, p := range snap.Participants {
		ids = append(ids, p.ID)
		isParticipant[p.ID] = true
	}

	// inbound[v] lists (u, weight) for links u -> v in rank-flow direction.
	type link struct {
		from   int
		weight float64
	}
	inbound := make(map[int][]link, n)
	outWeight := make(map[int]float64, n)
	for _, e := range snap.Edges {
		if e.Kind != graph.EdgeInfluence || e.Weight <= 0 {
			continue
		}
		if !isParticipant[e.From] || !isParticipant[e.To] {
			continue
		}
		// Reverse the edge: the influenced endorses the influencer.
		inbound[e.From] = append(inbound[e.From], link{from: e.To, weight: e.Weight})
		outWeight[e.To] += e.Weight
	}

	d := config.DampingFactor
	nf := float64(n)
	for _, id := range ids {
		scores[id] = 1.0 / nf
	}

	for iter := 0; iter < config.MaxIterations; iter++ {
		// Participants without outgoing links spread their score evenly.
		dangling := 0.0
		for _, id := range ids {
			if outWeight[id] == 0 {
				dangling += scores[id]
			}
		}

		newScores := make(map[int]float64, n)
		maxDelta := 0.0
		for _, v := range ids {
			sum := dangling / nf
			for _, l := range inbound[v] {
				sum += scores[l.from] * l.weight / outWeight[l.from]
			}

			newScore := (1.0-d)/nf + d*sum
			newScores[v] = newScore
			maxDelta = math.Max(maxDelta, math.Abs(newScore-scores[v]))
		}

		scores = newScores
		if maxDelta < config.Tolerance {
			break
		}
	}

	maxScore := 0.0
	for _, score := range scores {
		maxScore = math.Max(maxScore, score)
	}
	if maxScore > 0 {
		for id, score := range scores {
			scores[id] = score / maxScore
		}
	}
	return scores
}
