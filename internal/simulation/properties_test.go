package simulation_test

import (
	"fmt"
	"testing"

	"github.com/nvandessel/conviction/internal/config"
	"github.com/nvandessel/conviction/internal/simulation"
)

// TestRunProperties runs the default model over several seeds and checks
// the invariants that must hold at every step regardless of the draws.
func TestRunProperties(t *testing.T) {
	for _, seed := range []uint64{1, 7, 42, 1 << 40} {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			r := simulation.NewRunner(t)
			result := r.Run(simulation.Scenario{
				Name:  fmt.Sprintf("properties-%d", seed),
				Seed:  seed,
				Steps: 90,
			})

			if got := len(result.Steps); got != 91 {
				t.Fatalf("recorded %d steps, want 91 (including step 0)", got)
			}
			simulation.AssertSentimentBounded(t, result)
			simulation.AssertStatusesMonotone(t, result)
			simulation.AssertBudgetRespected(t, result)
			simulation.AssertGraphIntegrity(t, result)
			simulation.AssertHoldingsNonNegative(t, result)
		})
	}
}

// TestRunPropertiesBusyCommons stresses acceptance with a larger hatch,
// many proposals and a low threshold.
func TestRunPropertiesBusyCommons(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:  "busy",
		Seed:  2024,
		Steps: 60,
		Configure: func(cfg *config.Config) {
			cfg.Bootstrap.Participants = 12
			cfg.Bootstrap.Proposals = 8
			cfg.Conviction.Rho = 0.0001
			cfg.Conviction.MinProposalAgeDays = 0
			cfg.Lifecycle.BaseCompletionRate = 5
			cfg.Lifecycle.BaseFailureRate = 10
		},
	})

	simulation.AssertSentimentBounded(t, result)
	simulation.AssertStatusesMonotone(t, result)
	simulation.AssertBudgetRespected(t, result)
	simulation.AssertGraphIntegrity(t, result)
	simulation.AssertHoldingsNonNegative(t, result)

	if t.Failed() {
		t.Log(simulation.FormatStepDebug(result.Final()))
	}
}
