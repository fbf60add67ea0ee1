package lifecycle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/conviction/internal/commons"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/sampling"
)

func newReserve(t *testing.T) *commons.Commons {
	t.Helper()
	c, err := commons.New(commons.Hatch{Raise: 1000, Supply: 100, Tribute: 0.5, Kappa: 2})
	require.NoError(t, err)
	return c
}

// network has four participants (0..3) staking on proposals 4 and 5.
func network(t *testing.T) *graph.Network {
	t.Helper()
	n := graph.New()
	for i := 0; i < 4; i++ {
		n.AddParticipant(models.Participant{Holdings: 10}, nil)
	}
	for k := 0; k < 2; k++ {
		n.AddProposal(models.NewProposal(30, -1), func(int, int) float64 { return 0.8 })
	}
	for _, i := range n.Participants() {
		for _, j := range n.Proposals() {
			e := n.Support(i, j)
			e.Tokens = 5
			e.Conviction = models.Tracked(12)
		}
	}
	return n
}

func TestActivate_ResetsSupportEdges(t *testing.T) {
	n := network(t)
	reserve := newReserve(t)

	require.NoError(t, Activate(n, []int{4}, reserve))

	p := n.Proposal(4)
	assert.Equal(t, models.StatusActive, p.Status)
	assert.False(t, p.Conviction.IsTracked())
	for _, i := range n.Participants() {
		e := n.Support(i, 4)
		assert.Zero(t, e.Tokens)
		assert.False(t, e.Conviction.IsTracked())
		assert.Equal(t, 5.0, n.Support(i, 5).Tokens, "other proposals untouched")
	}
	assert.InDelta(t, 470, reserve.FundingPool(), 1e-9)
}

func TestActivate_Errors(t *testing.T) {
	n := network(t)
	reserve := newReserve(t)
	require.NoError(t, n.SetStatus(5, models.StatusFailed))

	err := Activate(n, []int{5}, reserve)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	require.NoError(t, reserve.Spend(480))
	err = Activate(n, []int{4}, reserve)
	assert.ErrorIs(t, err, commons.ErrInsufficientFunds)
}

func TestFailUnsupported(t *testing.T) {
	n := network(t)

	require.NoError(t, FailUnsupported(n, []int{5}))
	assert.Equal(t, models.StatusFailed, n.Proposal(5).Status)

	assert.ErrorIs(t, FailUnsupported(n, []int{5}), models.ErrIllegalTransition)
}

func TestOutcomeProbability(t *testing.T) {
	assert.InDelta(t, 1/(100+math.Log(30)), OutcomeProbability(100, 30), 1e-12)
	assert.Equal(t, 1.0, OutcomeProbability(0.1, 1))
	assert.Zero(t, OutcomeProbability(100, 0))
}

func TestDrawOutcomes(t *testing.T) {
	n := network(t)
	n.AddProposal(models.NewProposal(50, -1), func(int, int) float64 { return 0 })
	reserve := newReserve(t)
	require.NoError(t, Activate(n, []int{4, 5, 6}, reserve))

	// 4 completes; 5 fails on the second draw; 6 was just activated.
	s := &sampling.Script{Uniforms: []float64{0, 0.5, 0}}
	out := DrawOutcomes(n, Rates{Completion: 100, Failure: 200}, []int{6}, s)

	assert.Equal(t, []int{4}, out.Completed)
	assert.Equal(t, []int{5}, out.Failed)
	assert.Equal(t, 60.0, out.Outstanding)
	assert.Equal(t, 3, s.Calls["Bernoulli"])

	require.NoError(t, Resolve(n, out))
	assert.Equal(t, models.StatusCompleted, n.Proposal(4).Status)
	assert.Equal(t, models.StatusFailed, n.Proposal(5).Status)
	assert.Equal(t, models.StatusActive, n.Proposal(6).Status)

	assert.ErrorIs(t, Resolve(n, out), models.ErrIllegalTransition, "terminal states are final")
}

func TestStatusesStayMonotone(t *testing.T) {
	rng := sampling.NewRandom(11)
	n := network(t)
	reserve := newReserve(t)
	require.NoError(t, Activate(n, []int{4}, reserve))

	seen := map[int][]models.ProposalStatus{}
	for step := 0; step < 500; step++ {
		out := DrawOutcomes(n, Rates{Completion: 2, Failure: 3}, nil, rng)
		require.NoError(t, Resolve(n, out))
		for _, j := range n.Proposals() {
			seen[j] = append(seen[j], n.Proposal(j).Status)
		}
	}

	for j, history := range seen {
		for k := 1; k < len(history); k++ {
			prev, next := history[k-1], history[k]
			if prev != next {
				assert.True(t, prev.CanTransitionTo(next), "proposal %d: %s -> %s", j, prev, next)
			}
		}
	}
	assert.True(t, n.Proposal(4).Status.IsTerminal())
}
