package graph

import (
	"fmt"
	"sort"

	"github.com/nvandessel/conviction/internal/models"
)

// TotalStaked returns the tokens staked on proposal j across all participants.
func (n *Network) TotalStaked(j int) float64 {
	var total float64
	for _, i := range n.Participants() {
		if e := n.support[Pair{i, j}]; e != nil {
			total += e.Tokens
		}
	}
	return total
}

// EdgeConviction sums the tracked edge conviction into proposal j.
func (n *Network) EdgeConviction(j int) float64 {
	var total float64
	for _, i := range n.Participants() {
		if e := n.support[Pair{i, j}]; e != nil {
			total += e.Conviction.OrZero()
		}
	}
	return total
}

// FundsRequested sums the requested funds of the given proposals.
func (n *Network) FundsRequested(ids []int) float64 {
	var total float64
	for _, j := range ids {
		if p := n.proposals[j]; p != nil {
			total += p.FundsRequested
		}
	}
	return total
}

// CandidateFundsRequested sums the requested funds of all candidate proposals.
func (n *Network) CandidateFundsRequested() float64 {
	return n.FundsRequested(n.Proposals(models.StatusCandidate))
}

// MedianAffinity returns the median affinity over every support edge, or 0
// when there are none.
func (n *Network) MedianAffinity() float64 {
	if len(n.support) == 0 {
		return 0
	}
	values := make([]float64, 0, len(n.support))
	for _, e := range n.support {
		values = append(values, e.Affinity)
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

// MeanSentiment returns the average participant sentiment, or 0 with no
// participants.
func (n *Network) MeanSentiment() float64 {
	if len(n.participants) == 0 {
		return 0
	}
	// Summed in id order so the result is reproducible to the last bit.
	var total float64
	for _, i := range n.Participants() {
		total += n.participants[i].Sentiment
	}
	return total / float64(len(n.participants))
}

// Validate checks the structural invariants of the network:
//   - every participant has exactly one support edge to every proposal
//   - support edges run participant -> proposal
//   - conflict edges join proposals, influence edges join participants
//   - tokens are non-negative and statuses are known
func (n *Network) Validate() error {
	if want := len(n.participants) * len(n.proposals); len(n.support) != want {
		return fmt.Errorf("support edges: have %d, want %d", len(n.support), want)
	}
	for pair, e := range n.support {
		if _, ok := n.participants[pair.From]; !ok {
			return fmt.Errorf("support edge %d->%d: source is not a participant", pair.From, pair.To)
		}
		if _, ok := n.proposals[pair.To]; !ok {
			return fmt.Errorf("support edge %d->%d: target is not a proposal", pair.From, pair.To)
		}
		if e.Tokens < 0 {
			return fmt.Errorf("support edge %d->%d: negative tokens %g", pair.From, pair.To, e.Tokens)
		}
	}
	for pair := range n.conflict {
		if n.proposals[pair.From] == nil || n.proposals[pair.To] == nil {
			return fmt.Errorf("conflict edge %d->%d: endpoints must be proposals", pair.From, pair.To)
		}
	}
	for pair := range n.influence {
		if n.participants[pair.From] == nil || n.participants[pair.To] == nil {
			return fmt.Errorf("influence edge %d->%d: endpoints must be participants", pair.From, pair.To)
		}
	}
	for id, p := range n.proposals {
		if !p.Status.IsValid() {
			return fmt.Errorf("proposal %d: unknown status %q", id, p.Status)
		}
	}
	if n.nextID != n.NodeCount() {
		return fmt.Errorf("id counter %d out of step with %d nodes", n.nextID, n.NodeCount())
	}
	return nil
}

// Clone returns a deep copy of the network.
func (n *Network) Clone() *Network {
	c := New()
	c.nextID = n.nextID
	for id, p := range n.participants {
		cp := *p
		if p.Vesting != nil {
			v := *p.Vesting
			cp.Vesting = &v
		}
		c.participants[id] = &cp
	}
	for id, p := range n.proposals {
		cp := *p
		c.proposals[id] = &cp
	}
	for pair, e := range n.support {
		ce := *e
		c.support[pair] = &ce
	}
	for pair, w := range n.conflict {
		c.conflict[pair] = w
	}
	for pair, w := range n.influence {
		c.influence[pair] = w
	}
	return c
}
