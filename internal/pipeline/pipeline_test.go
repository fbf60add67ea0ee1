package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/conviction/internal/bootstrap"
	"github.com/nvandessel/conviction/internal/commons"
	"github.com/nvandessel/conviction/internal/conviction"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/lifecycle"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/sampling"
)

func testParams() *Params {
	return &Params{
		Alpha:                  0.5,
		MinSupport:             1,
		MinProposalAge:         2,
		Trigger:                conviction.Threshold{Alpha: 0.5, Beta: 0.2, Rho: 0.0025}.Func(),
		SentimentDecay:         0.01,
		SentimentSensitivity:   0.75,
		DecayTerminalConflicts: true,
		Rates:                  lifecycle.Rates{Completion: 100, Failure: 200},
		ProposalScaleFactor:    1,
		ConflictRate:           0.25,
	}
}

func testReserve(t *testing.T) *commons.Commons {
	t.Helper()
	c, err := commons.New(commons.Hatch{Raise: 10000, Supply: 1000, Tribute: 0.2, Kappa: 2})
	require.NoError(t, err)
	return c
}

func TestDefault_BlockOrder(t *testing.T) {
	assert.Equal(t, []string{"arrivals", "staking", "acceptance", "outcomes"}, Default().Blocks())
}

func TestStep_RejectsMismatchedDecision(t *testing.T) {
	pl := New(Block{
		Name:    "broken",
		Policy:  StakingPolicy,
		Updates: []UpdateFunc{UpdateAccepted},
	})
	s := &State{Network: graph.New(), Reserve: testReserve(t), Sampler: &sampling.Script{}}

	_, err := pl.Step(testParams(), 0, &MemoryHistory{}, s)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected acceptance decision")
}

func TestStep_PropagatesPolicyError(t *testing.T) {
	boom := errors.New("boom")
	pl := New(Block{Name: "fail", Policy: func(*Params, int, History, *State) (Decision, error) {
		return nil, boom
	}})

	_, err := pl.Step(testParams(), 3, &MemoryHistory{}, &State{})

	assert.ErrorIs(t, err, boom)
}

// fundableState has two hatchers who both strongly favour proposal 2 and
// proposal 2 is old enough to be accepted.
func fundableState(t *testing.T) *State {
	t.Helper()
	n := graph.New()
	for i := 0; i < 2; i++ {
		n.AddParticipant(models.Participant{Sentiment: 0.5, Holdings: 500}, nil)
	}
	p := models.NewProposal(50, -1)
	p.Age = 5
	n.AddProposal(p, func(int, int) float64 { return 0.9 })
	q := models.NewProposal(60, -1)
	n.AddProposal(q, func(int, int) float64 { return 0.2 })
	require.NoError(t, n.Validate())

	// No arrivals, no engagement, no outcomes.
	return &State{Network: n, Reserve: testReserve(t), Sentiment: 0.3, Sampler: &sampling.Script{Default: 0.999}}
}

func TestStep_AcceptsAndActivates(t *testing.T) {
	s := fundableState(t)
	pl := Default()
	var seen []string
	pl.Observe(func(_ int, block string, _ Decision, _ []Variable) {
		seen = append(seen, block)
	})

	decisions, err := pl.Step(testParams(), 0, &MemoryHistory{}, s)
	require.NoError(t, err)

	assert.Equal(t, []string{"arrivals", "staking", "acceptance", "outcomes"}, seen)
	require.Len(t, decisions, 4)
	acc, ok := decisions[2].(AcceptanceDecision)
	require.True(t, ok)
	assert.Equal(t, []int{2}, acc.Accepted)
	assert.Len(t, acc.Triggers, 2)

	p := s.Network.Proposal(2)
	assert.Equal(t, models.StatusActive, p.Status)
	assert.False(t, p.Conviction.IsTracked())
	assert.Equal(t, acc.Triggers[2], p.Trigger)
	for _, i := range s.Network.Participants() {
		assert.Zero(t, s.Network.Support(i, 2).Tokens)
		assert.False(t, s.Network.Support(i, 2).Conviction.IsTracked())
	}
	assert.InDelta(t, 2000-50, s.Reserve.FundingPool(), 1e-9)

	// Proposal 3 had no supporters and fails for lack of support.
	assert.Equal(t, models.StatusFailed, s.Network.Proposal(3).Status)

	out, ok := decisions[3].(OutcomeDecision)
	require.True(t, ok)
	assert.Zero(t, out.Outstanding, "proposal activated this step is not drawn")
	assert.Equal(t, []int{2}, s.Activated)

	snap := TakeSnapshot(0, s, decisions)
	assert.Equal(t, []int{2}, snap.Accepted)
	assert.Equal(t, 1, snap.Statuses[models.StatusActive])
	assert.Equal(t, 2, snap.Participants)
	assert.Equal(t, s.Reserve.SpotPrice(), snap.TokenPrice)
	assert.Greater(t, snap.TokenPrice, 0.0)
}

func TestStep_Properties(t *testing.T) {
	sampler := sampling.NewRandom(2024)
	reserve := testReserve(t)
	params := testParams()
	n, err := bootstrap.Build(bootstrap.Options{
		Participants:        6,
		Proposals:           4,
		Holdings:            200,
		VestingCliffDays:    10,
		VestingHalfLifeDays: 30,
		ConflictRate:        0.25,
		InfluenceRate:       0.5,
		ScaleFactor:         1,
		Trigger:             params.Trigger,
	}, reserve, sampler)
	require.NoError(t, err)

	s := &State{Network: n, Reserve: reserve, Sentiment: 0.6, Sampler: sampler}
	h := &MemoryHistory{}
	pl := Default()
	prevStatus := map[int]models.ProposalStatus{}

	for step := 0; step < 60; step++ {
		poolBefore := reserve.FundingPool()
		decisions, err := pl.Step(params, step, h, s)
		require.NoError(t, err, "step %d", step)
		h.Append(TakeSnapshot(step, s, decisions))

		require.NoError(t, s.Network.Validate())
		assert.LessOrEqual(t, s.Sentiment, models.MaxSentiment)
		for _, i := range s.Network.Participants() {
			assert.LessOrEqual(t, s.Network.Participant(i).Sentiment, models.MaxSentiment)
			assert.GreaterOrEqual(t, s.Network.Participant(i).Holdings, 0.0)
		}
		acc := decisions[2].(AcceptanceDecision)
		assert.LessOrEqual(t, s.Network.FundsRequested(acc.Accepted), poolBefore+decisions[0].(ArrivalDecision).FundsArrival+1e-9)
		assert.GreaterOrEqual(t, reserve.FundingPool(), 0.0)

		for _, j := range s.Network.Proposals() {
			next := s.Network.Proposal(j).Status
			if prev, ok := prevStatus[j]; ok && prev != next {
				assert.True(t, prev.CanTransitionTo(next), "proposal %d: %s -> %s", j, prev, next)
			}
			prevStatus[j] = next
		}
	}
	assert.Equal(t, 60, h.Len())
	assert.Equal(t, 59, h.At(59).Step)
}
