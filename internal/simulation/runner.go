package simulation

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nvandessel/conviction/internal/config"
	"github.com/nvandessel/conviction/internal/pipeline"
	"github.com/nvandessel/conviction/internal/store"
)

// Runner orchestrates simulation experiments against a real SQLite
// history store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteHistoryStore
}

// NewRunner creates a simulation runner with an isolated SQLite store
// and sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteHistoryStore(context.Background(), filepath.Join(tmpDir, "history.db"))
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s}
}

// Config returns the configuration a scenario runs with.
func (r *Runner) Config(scenario Scenario) *config.Config {
	cfg := config.Default()
	seed := scenario.Seed
	cfg.Simulation.Seed = &seed
	cfg.Simulation.Steps = scenario.Steps
	if scenario.Configure != nil {
		scenario.Configure(cfg)
	}
	return cfg
}

// Run executes the scenario and returns the collected results. Step 0 is
// the bootstrapped state.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()

	var steps []StepResult
	record := func(snap pipeline.Snapshot, s *pipeline.State) {
		steps = append(steps, StepResult{Snapshot: snap, Network: s.Network.Export()})
	}

	sim, err := New(r.Config(scenario), Options{
		RunID:   scenario.Name,
		Store:   r.store,
		Sampler: scenario.Sampler,
		OnStep:  record,
	})
	if err != nil {
		r.t.Fatalf("scenario %s: New: %v", scenario.Name, err)
	}
	record(sim.History().At(0), sim.State())

	if _, err := sim.Run(context.Background()); err != nil {
		r.t.Fatalf("scenario %s: Run: %v", scenario.Name, err)
	}

	return SimulationResult{
		RunID: sim.RunID(),
		Steps: steps,
		Store: r.store,
	}
}

// FormatStepDebug returns a debug string for a step result.
func FormatStepDebug(sr StepResult) string {
	s := fmt.Sprintf("Step %d: pool=%.2f supply=%.2f sentiment=%.4f statuses=%v\n",
		sr.Step, sr.FundingPool, sr.TokenSupply, sr.Sentiment, sr.Statuses)
	for _, p := range sr.Network.Proposals {
		s += fmt.Sprintf("  proposal %d: %s funds=%.2f conviction=%s trigger=%.2f\n",
			p.ID, p.Status, p.FundsRequested, p.Conviction, p.Trigger)
	}
	return s
}
