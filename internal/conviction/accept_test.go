package conviction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/conviction/internal/commons"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/lifecycle"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/sampling"
)

func fixedTrigger(v float64) TriggerFunc {
	return func(float64, float64, float64) float64 { return v }
}

// addProposal inserts a candidate with the given funds, conviction and age.
func addProposal(n *graph.Network, funds, conv float64, age int) int {
	p := models.NewProposal(funds, -1)
	p.Conviction = models.Tracked(conv)
	p.Age = age
	return n.AddProposal(p, func(int, int) float64 { return 0.5 })
}

func TestSelectAccepted_RefillScenario(t *testing.T) {
	n := graph.New()
	a := addProposal(n, 60, 50, 3)
	b := addProposal(n, 50, 40, 3)

	sel := SelectAccepted(n, 2, 100, 1000, fixedTrigger(10))

	assert.True(t, sel.Rationed)
	assert.Equal(t, []int{a}, sel.Accepted)
	assert.Len(t, sel.Triggers, 2)
	assert.Equal(t, 10.0, sel.Triggers[b])
}

func TestSelectAccepted_AddsAfterRationing(t *testing.T) {
	n := graph.New()
	x := addProposal(n, 60, 10, 3)
	addProposal(n, 50, 5, 3)
	z := addProposal(n, 10, 1, 3)

	sel := SelectAccepted(n, 2, 100, 1000, fixedTrigger(0.5))

	assert.True(t, sel.Rationed)
	assert.Equal(t, []int{x, z}, sel.Accepted, "z still fits after y is rationed out")
}

func TestSelectAccepted_RequestsSummingToPoolCanBeSpent(t *testing.T) {
	// 0.3 + 0.1 + 0.2 adds up to just over 0.6 in float64, and paying them
	// out of 0.6 one at a time leaves just under 0.2 for the last one.
	reserve, err := commons.New(commons.Hatch{Raise: 1.2, Supply: 1, Tribute: 0.5, Kappa: 2})
	require.NoError(t, err)
	require.Equal(t, 0.6, reserve.FundingPool())

	n := graph.New()
	for _, funds := range []float64{0.3, 0.1, 0.2} {
		addProposal(n, funds, 50, 5)
	}

	sel := SelectAccepted(n, 2, reserve.FundingPool(), 1000, fixedTrigger(10))

	assert.False(t, sel.Rationed)
	assert.Equal(t, []int{0, 1, 2}, sel.Accepted)
	require.NoError(t, lifecycle.Activate(n, sel.Accepted, reserve))
	assert.Zero(t, reserve.FundingPool())
	assert.Equal(t, 3, n.StatusCounts()[models.StatusActive])
}

func TestSelectAccepted_Gates(t *testing.T) {
	n := graph.New()
	young := addProposal(n, 1, 50, 2)
	weak := addProposal(n, 1, 5, 5)
	ok := addProposal(n, 1, 50, 5)
	active := addProposal(n, 1, 50, 5)
	require.NoError(t, n.SetStatus(active, models.StatusActive))
	untracked := addProposal(n, 1, 0, 5)
	n.Proposal(untracked).Conviction = models.Untracked()

	sel := SelectAccepted(n, 2, 100, 1000, fixedTrigger(10))

	assert.Equal(t, []int{ok}, sel.Accepted)
	assert.False(t, sel.Rationed)
	for _, id := range []int{young, weak, ok, active, untracked} {
		assert.Contains(t, sel.Triggers, id, "every proposal gets a trigger")
	}
}

func TestSelectAccepted_ConvictionEqualToThresholdIsRejected(t *testing.T) {
	n := graph.New()
	addProposal(n, 1, 10, 5)

	sel := SelectAccepted(n, 2, 100, 1000, fixedTrigger(10))

	assert.Empty(t, sel.Accepted)
}

func TestRation(t *testing.T) {
	tests := []struct {
		name string
		in   []Candidate
		pool float64
		want []int
	}{
		{"empty", nil, 100, nil},
		{"single fits", []Candidate{{ID: 1, Funds: 99, Conviction: 1}}, 100, []int{1}},
		{"single exact is excluded", []Candidate{{ID: 1, Funds: 100, Conviction: 1}}, 100, nil},
		{"nothing fits", []Candidate{{ID: 1, Funds: 150, Conviction: 5}, {ID: 2, Funds: 10, Conviction: 1}}, 100, nil},
		{
			"stable ties keep input order",
			[]Candidate{{ID: 3, Funds: 10, Conviction: 7}, {ID: 1, Funds: 10, Conviction: 7}, {ID: 2, Funds: 10, Conviction: 9}},
			100,
			[]int{2, 3, 1},
		},
		{
			"greedy beats knapsack",
			[]Candidate{{ID: 1, Funds: 45, Conviction: 1}, {ID: 2, Funds: 45, Conviction: 2}, {ID: 3, Funds: 70, Conviction: 3}},
			100,
			[]int{3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for _, c := range Ration(tt.in, tt.pool) {
				got = append(got, c.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectAccepted_NeverExceedsPool(t *testing.T) {
	rng := sampling.NewRandom(42)
	for round := 0; round < 100; round++ {
		n := graph.New()
		for k := 0; k < 8; k++ {
			addProposal(n, rng.Float64()*60, rng.Float64()*100, 5)
		}
		pool := 20 + rng.Float64()*100

		sel := SelectAccepted(n, 2, pool, 1000, fixedTrigger(30))

		assert.LessOrEqual(t, n.FundsRequested(sel.Accepted), pool*(1+commons.Tolerance))
	}
}
