// Package graph holds the participant–proposal network: stable integer node
// ids, typed node records, and typed edges keyed by ordered id pairs.
//
// Three edge kinds exist:
//   - support: participant -> proposal (affinity, staked tokens, conviction)
//   - conflict: proposal -> proposal (competing proposals)
//   - influence: participant -> participant (social relationship)
//
// Every participant has exactly one support edge to every proposal. The
// Network maintains that invariant itself: adding a node creates its full
// set of support edges.
package graph

import (
	"fmt"
	"sort"

	"github.com/nvandessel/conviction/internal/models"
)

// NodeKind distinguishes participants from proposals.
type NodeKind string

const (
	KindParticipant NodeKind = "participant"
	KindProposal    NodeKind = "proposal"
)

// EdgeKind names one of the typed relationships.
type EdgeKind string

const (
	EdgeSupport   EdgeKind = "support"
	EdgeConflict  EdgeKind = "conflict"
	EdgeInfluence EdgeKind = "influence"
)

// Pair is an ordered (from, to) node id pair.
type Pair struct {
	From int
	To   int
}

// SupportEdge is a participant's staking relationship to a proposal.
type SupportEdge struct {
	Affinity   float64
	Tokens     float64
	Conviction models.Conviction
}

// AffinityFunc chooses the affinity of a new support edge. It receives the
// participant and proposal ids of the edge being created.
type AffinityFunc func(participantID, proposalID int) float64

// Network is the mutable simulation graph. It is not safe for concurrent
// use; the step pipeline owns it exclusively.
type Network struct {
	nextID       int
	participants map[int]*models.Participant
	proposals    map[int]*models.Proposal
	support      map[Pair]*SupportEdge
	conflict     map[Pair]float64
	influence    map[Pair]float64
}

// New creates an empty network.
func New() *Network {
	return &Network{
		participants: make(map[int]*models.Participant),
		proposals:    make(map[int]*models.Proposal),
		support:      make(map[Pair]*SupportEdge),
		conflict:     make(map[Pair]float64),
		influence:    make(map[Pair]float64),
	}
}

// NodeCount returns the number of participants plus proposals.
func (n *Network) NodeCount() int {
	return len(n.participants) + len(n.proposals)
}

// Kind returns the kind of the node with the given id.
func (n *Network) Kind(id int) (NodeKind, bool) {
	if _, ok := n.participants[id]; ok {
		return KindParticipant, true
	}
	if _, ok := n.proposals[id]; ok {
		return KindProposal, true
	}
	return "", false
}

// AddParticipant inserts p under a fresh id and creates its support edge to
// every existing proposal with zero tokens. Edges into proposals that no
// longer track conviction are created untracked. The assigned id is returned.
func (n *Network) AddParticipant(p models.Participant, affinity AffinityFunc) int {
	id := n.nextID
	n.nextID++

	p.ID = id
	n.participants[id] = &p

	for _, j := range n.Proposals() {
		n.support[Pair{id, j}] = &SupportEdge{
			Affinity:   affinity(id, j),
			Conviction: edgeConvictionFor(n.proposals[j]),
		}
	}
	return id
}

// AddProposal inserts p under a fresh id and creates a support edge from
// every existing participant. The assigned id is returned.
func (n *Network) AddProposal(p models.Proposal, affinity AffinityFunc) int {
	id := n.nextID
	n.nextID++

	p.ID = id
	if p.Status == "" {
		p.Status = models.StatusCandidate
	}
	n.proposals[id] = &p

	for _, i := range n.Participants() {
		n.support[Pair{i, id}] = &SupportEdge{
			Affinity:   affinity(i, id),
			Conviction: edgeConvictionFor(&p),
		}
	}
	return id
}

func edgeConvictionFor(p *models.Proposal) models.Conviction {
	if p.Conviction.IsTracked() {
		return models.Tracked(0)
	}
	return models.Untracked()
}

// AddInfluence adds a participant -> participant influence edge.
func (n *Network) AddInfluence(from, to int, weight float64) error {
	if _, ok := n.participants[from]; !ok {
		return fmt.Errorf("influence edge %d->%d: source is not a participant", from, to)
	}
	if _, ok := n.participants[to]; !ok {
		return fmt.Errorf("influence edge %d->%d: target is not a participant", from, to)
	}
	if from == to {
		return fmt.Errorf("influence edge %d->%d: self loop", from, to)
	}
	n.influence[Pair{from, to}] = weight
	return nil
}

// AddConflict adds a proposal -> proposal conflict edge with the given weight.
func (n *Network) AddConflict(from, to int, weight float64) error {
	if _, ok := n.proposals[from]; !ok {
		return fmt.Errorf("conflict edge %d->%d: source is not a proposal", from, to)
	}
	if _, ok := n.proposals[to]; !ok {
		return fmt.Errorf("conflict edge %d->%d: target is not a proposal", from, to)
	}
	if from == to {
		return fmt.Errorf("conflict edge %d->%d: self loop", from, to)
	}
	n.conflict[Pair{from, to}] = weight
	return nil
}

// Participant returns the participant with the given id, or nil.
func (n *Network) Participant(id int) *models.Participant {
	return n.participants[id]
}

// Proposal returns the proposal with the given id, or nil.
func (n *Network) Proposal(id int) *models.Proposal {
	return n.proposals[id]
}

// Participants returns all participant ids in ascending order.
func (n *Network) Participants() []int {
	ids := make([]int, 0, len(n.participants))
	for id := range n.participants {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Proposals returns proposal ids in ascending order, filtered to the given
// statuses when any are supplied.
func (n *Network) Proposals(statuses ...models.ProposalStatus) []int {
	ids := make([]int, 0, len(n.proposals))
	for id, p := range n.proposals {
		if len(statuses) > 0 && !hasStatus(p.Status, statuses) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func hasStatus(s models.ProposalStatus, statuses []models.ProposalStatus) bool {
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

// Support returns the support edge from participant i to proposal j, or nil.
func (n *Network) Support(i, j int) *SupportEdge {
	return n.support[Pair{i, j}]
}

// ConflictLink is one side of a conflict relationship as seen from a proposal.
type ConflictLink struct {
	Other  int
	Weight float64
}

// Conflicts returns every proposal joined to id by a conflict edge in either
// direction, ordered by id. When both directions exist the larger weight wins.
func (n *Network) Conflicts(id int) []ConflictLink {
	weights := make(map[int]float64)
	for pair, w := range n.conflict {
		var other int
		switch id {
		case pair.From:
			other = pair.To
		case pair.To:
			other = pair.From
		default:
			continue
		}
		if cur, ok := weights[other]; !ok || w > cur {
			weights[other] = w
		}
	}

	links := make([]ConflictLink, 0, len(weights))
	for other, w := range weights {
		links = append(links, ConflictLink{Other: other, Weight: w})
	}
	sort.Slice(links, func(a, b int) bool { return links[a].Other < links[b].Other })
	return links
}

// Influence returns the weight of the influence edge from -> to.
func (n *Network) Influence(from, to int) (float64, bool) {
	w, ok := n.influence[Pair{from, to}]
	return w, ok
}

// EdgeCount returns the number of edges of the given kind.
func (n *Network) EdgeCount(kind EdgeKind) int {
	switch kind {
	case EdgeSupport:
		return len(n.support)
	case EdgeConflict:
		return len(n.conflict)
	case EdgeInfluence:
		return len(n.influence)
	}
	return 0
}

// SetStatus moves a proposal to next, enforcing the lifecycle table.
func (n *Network) SetStatus(id int, next models.ProposalStatus) error {
	p, ok := n.proposals[id]
	if !ok {
		return fmt.Errorf("set status: proposal %d not found", id)
	}
	if err := p.Status.CheckTransition(next); err != nil {
		return fmt.Errorf("proposal %d: %w", id, err)
	}
	p.Status = next
	return nil
}

// StatusCounts tallies proposals by status.
func (n *Network) StatusCounts() models.StatusCounts {
	counts := make(models.StatusCounts, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		counts[s] = 0
	}
	for _, p := range n.proposals {
		counts[p.Status]++
	}
	return counts
}
