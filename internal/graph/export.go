package graph

import (
	"fmt"
	"sort"

	"github.com/nvandessel/conviction/internal/models"
)

// Edge is the flat, serializable form of any network edge.
type Edge struct {
	Kind     EdgeKind `json:"kind"`
	From     int      `json:"from"`
	To       int      `json:"to"`
	Weight   float64  `json:"weight,omitempty"`
	Affinity float64  `json:"affinity,omitempty"`
	Tokens   float64  `json:"tokens,omitempty"`

	// Conviction is set on support edges that track conviction; a support
	// edge without it is untracked.
	Conviction *float64 `json:"conviction,omitempty"`
}

// Snapshot is the serializable form of a Network.
type Snapshot struct {
	Participants []models.Participant `json:"participants"`
	Proposals    []models.Proposal    `json:"proposals"`
	Edges        []Edge               `json:"edges"`
}

// Export flattens the network into a Snapshot with nodes ordered by id and
// edges ordered by kind, then endpoints.
func (n *Network) Export() Snapshot {
	snap := Snapshot{
		Participants: make([]models.Participant, 0, len(n.participants)),
		Proposals:    make([]models.Proposal, 0, len(n.proposals)),
		Edges:        make([]Edge, 0, len(n.support)+len(n.conflict)+len(n.influence)),
	}
	for _, id := range n.Participants() {
		snap.Participants = append(snap.Participants, *n.participants[id])
	}
	for _, id := range n.Proposals() {
		snap.Proposals = append(snap.Proposals, *n.proposals[id])
	}

	for pair, e := range n.support {
		edge := Edge{Kind: EdgeSupport, From: pair.From, To: pair.To, Affinity: e.Affinity, Tokens: e.Tokens}
		if v, ok := e.Conviction.Value(); ok {
			edge.Conviction = &v
		}
		snap.Edges = append(snap.Edges, edge)
	}
	for pair, w := range n.conflict {
		snap.Edges = append(snap.Edges, Edge{Kind: EdgeConflict, From: pair.From, To: pair.To, Weight: w})
	}
	for pair, w := range n.influence {
		snap.Edges = append(snap.Edges, Edge{Kind: EdgeInfluence, From: pair.From, To: pair.To, Weight: w})
	}
	sort.Slice(snap.Edges, func(a, b int) bool {
		ea, eb := snap.Edges[a], snap.Edges[b]
		if ea.Kind != eb.Kind {
			return ea.Kind < eb.Kind
		}
		if ea.From != eb.From {
			return ea.From < eb.From
		}
		return ea.To < eb.To
	})
	return snap
}

// FromSnapshot rebuilds a Network and validates it.
func FromSnapshot(snap Snapshot) (*Network, error) {
	n := New()
	for _, p := range snap.Participants {
		p := p
		n.participants[p.ID] = &p
	}
	for _, p := range snap.Proposals {
		p := p
		n.proposals[p.ID] = &p
	}
	n.nextID = n.NodeCount()

	for _, e := range snap.Edges {
		pair := Pair{e.From, e.To}
		switch e.Kind {
		case EdgeSupport:
			se := &SupportEdge{Affinity: e.Affinity, Tokens: e.Tokens, Conviction: models.Untracked()}
			if e.Conviction != nil {
				se.Conviction = models.Tracked(*e.Conviction)
			}
			n.support[pair] = se
		case EdgeConflict:
			n.conflict[pair] = e.Weight
		case EdgeInfluence:
			n.influence[pair] = e.Weight
		default:
			return nil, fmt.Errorf("edge %d->%d: unknown kind %q", e.From, e.To, e.Kind)
		}
	}

	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return n, nil
}
