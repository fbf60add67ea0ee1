package conviction

import (
	"math"

	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
)

// Accumulate applies one staking round to the network.
//
// Each participant's holdings change by its stake delta (floored at 0), then
// its holdings are spread over its supported candidates in proportion to
// affinity. Every edge into a candidate advances its conviction by
// tokens + alpha*previous and the candidate's conviction becomes the sum
// over its edges. Edges into active or terminal proposals are left alone.
func Accumulate(n *graph.Network, stakes map[int]Stake, alpha float64) {
	candidates := n.Proposals(models.StatusCandidate)
	participants := n.Participants()

	for _, i := range participants {
		p := n.Participant(i)
		stake := stakes[i]
		p.Holdings = math.Max(0, p.Holdings+stake.DeltaHoldings)

		supported := make(map[int]bool, len(stake.Supported))
		var total float64
		for _, j := range stake.Supported {
			if e := n.Support(i, j); e != nil && n.Proposal(j).Status == models.StatusCandidate {
				supported[j] = true
				total += e.Affinity
			}
		}

		for _, j := range candidates {
			e := n.Support(i, j)
			e.Tokens = 0
			if supported[j] && total != 0 {
				e.Tokens = e.Affinity / total * p.Holdings
			}
			e.Conviction = e.Conviction.Accumulate(e.Tokens, alpha)
		}
	}

	for _, j := range candidates {
		n.Proposal(j).Conviction = models.Tracked(n.EdgeConviction(j))
	}
}

// Unsupported returns the candidates whose total staked tokens are below
// minSupport.
func Unsupported(n *graph.Network, minSupport float64) []int {
	var ids []int
	for _, j := range n.Proposals(models.StatusCandidate) {
		if n.TotalStaked(j) < minSupport {
			ids = append(ids, j)
		}
	}
	return ids
}
