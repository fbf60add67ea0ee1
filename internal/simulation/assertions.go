package simulation

import (
	"math"
	"testing"

	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
)

// tolerance absorbs float rounding in pool and conviction sums.
const tolerance = 1e-6

// AssertSentimentBounded asserts that commons and participant sentiment
// never exceed models.MaxSentiment and stay finite.
func AssertSentimentBounded(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, sr := range result.Steps {
		if math.IsNaN(sr.Sentiment) || sr.Sentiment > models.MaxSentiment {
			t.Errorf("AssertSentimentBounded: step %d: commons sentiment %.6f out of bounds", sr.Step, sr.Sentiment)
		}
		for _, p := range sr.Network.Participants {
			if math.IsNaN(p.Sentiment) || p.Sentiment > models.MaxSentiment {
				t.Errorf("AssertSentimentBounded: step %d: participant %d sentiment %.6f out of bounds", sr.Step, p.ID, p.Sentiment)
			}
		}
	}
}

// AssertStatusesMonotone asserts that every proposal only moves along the
// lifecycle: candidate -> active -> completed|failed, or candidate -> failed.
func AssertStatusesMonotone(t *testing.T, result SimulationResult) {
	t.Helper()
	last := make(map[int]models.ProposalStatus)
	for _, sr := range result.Steps {
		seen := make(map[int]bool, len(sr.Network.Proposals))
		for _, p := range sr.Network.Proposals {
			seen[p.ID] = true
			prev, ok := last[p.ID]
			if ok && prev != p.Status && !prev.CanTransitionTo(p.Status) {
				t.Errorf("AssertStatusesMonotone: step %d: proposal %d moved %s -> %s", sr.Step, p.ID, prev, p.Status)
			}
			last[p.ID] = p.Status
		}
		for id := range last {
			if !seen[id] {
				t.Errorf("AssertStatusesMonotone: step %d: proposal %d disappeared", sr.Step, id)
			}
		}
	}
}

// AssertBudgetRespected asserts that the funding pool never goes negative,
// which holds only if no step funds more than the pool held, and that every
// accepted proposal is active at the end of its step.
func AssertBudgetRespected(t *testing.T, result SimulationResult) {
	t.Helper()
	for i, sr := range result.Steps {
		if sr.FundingPool < -tolerance {
			t.Errorf("AssertBudgetRespected: step %d: funding pool %.6f is negative", sr.Step, sr.FundingPool)
		}
		for _, id := range sr.Accepted {
			if got := result.Status(i, id); got != models.StatusActive {
				t.Errorf("AssertBudgetRespected: step %d: accepted proposal %d is %q, want active", sr.Step, id, got)
			}
		}
	}
}

// AssertGraphIntegrity asserts that every recorded network is valid, that
// funded proposals hold no stake or conviction, and that each candidate's
// conviction is the sum over its support edges.
func AssertGraphIntegrity(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, sr := range result.Steps {
		if _, err := graph.FromSnapshot(sr.Network); err != nil {
			t.Errorf("AssertGraphIntegrity: step %d: %v", sr.Step, err)
			continue
		}

		sums := make(map[int]float64)
		for _, e := range sr.Network.Edges {
			if e.Kind != graph.EdgeSupport {
				continue
			}
			if e.Conviction != nil {
				sums[e.To] += *e.Conviction
			}
		}

		for _, p := range sr.Network.Proposals {
			switch p.Status {
			case models.StatusCandidate:
				v, ok := p.Conviction.Value()
				if !ok {
					t.Errorf("AssertGraphIntegrity: step %d: candidate %d has untracked conviction", sr.Step, p.ID)
				} else if math.Abs(v-sums[p.ID]) > tolerance*math.Max(1, v) {
					t.Errorf("AssertGraphIntegrity: step %d: candidate %d conviction %.6f != edge sum %.6f", sr.Step, p.ID, v, sums[p.ID])
				}
			case models.StatusActive, models.StatusCompleted:
				if p.Conviction.IsTracked() {
					t.Errorf("AssertGraphIntegrity: step %d: funded proposal %d still tracks conviction", sr.Step, p.ID)
				}
				for _, e := range sr.Network.Edges {
					if e.Kind == graph.EdgeSupport && e.To == p.ID && (e.Tokens != 0 || e.Conviction != nil) {
						t.Errorf("AssertGraphIntegrity: step %d: funded proposal %d has stake from %d", sr.Step, p.ID, e.From)
					}
				}
			}
		}
	}
}

// AssertHoldingsNonNegative asserts that no participant's holdings or
// staked tokens ever go below zero.
func AssertHoldingsNonNegative(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, sr := range result.Steps {
		for _, p := range sr.Network.Participants {
			if p.Holdings < 0 {
				t.Errorf("AssertHoldingsNonNegative: step %d: participant %d holdings %.6f", sr.Step, p.ID, p.Holdings)
			}
		}
	}
}
