package conviction

import (
	"math"

	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/sampling"
	"github.com/nvandessel/conviction/internal/sentiment"
)

// MinSupportAffinity is the lowest affinity at which a participant will
// stake on a proposal at all.
const MinSupportAffinity = 0.5

// Stake is one participant's staking decision for a step.
type Stake struct {
	// Supported lists the candidate proposals the participant stakes on.
	Supported []int `json:"supported"`
	// DeltaHoldings is the change to nonvesting holdings from engagement.
	DeltaHoldings float64 `json:"delta_holdings"`
}

// DecideStaking chooses, for every participant, which candidates to support
// and how much their holdings change this step.
//
// A participant supports every candidate whose affinity exceeds
// max(sensitivity * best candidate affinity, MinSupportAffinity). Holdings
// change by the engagement force.
func DecideStaking(n *graph.Network, sensitivity float64, s sampling.Sampler) map[int]Stake {
	candidates := n.Proposals(models.StatusCandidate)
	stakes := make(map[int]Stake, len(n.Participants()))

	for _, i := range n.Participants() {
		p := n.Participant(i)
		delta, _ := sentiment.Engagement(p.Sentiment, sensitivity, s)
		if len(candidates) == 0 {
			stakes[i] = Stake{DeltaHoldings: delta}
			continue
		}

		best := math.Inf(-1)
		for _, j := range candidates {
			best = math.Max(best, n.Support(i, j).Affinity)
		}
		cutoff := math.Max(sensitivity*best, MinSupportAffinity)

		var supported []int
		for _, j := range candidates {
			if n.Support(i, j).Affinity > cutoff {
				supported = append(supported, j)
			}
		}
		stakes[i] = Stake{Supported: supported, DeltaHoldings: delta}
	}
	return stakes
}
