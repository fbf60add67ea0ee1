package simulation

import (
	"github.com/nvandessel/conviction/internal/config"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/pipeline"
	"github.com/nvandessel/conviction/internal/sampling"
	"github.com/nvandessel/conviction/internal/store"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name  string
	Seed  uint64
	Steps int

	// Configure, when non-nil, adjusts the default configuration before
	// the run is built.
	Configure func(cfg *config.Config)

	// Sampler, when non-nil, replaces the seeded random source. Use this
	// with sampling.Script for scenarios that need exact draws.
	Sampler sampling.Sampler
}

// StepResult captures the state after a single step.
type StepResult struct {
	pipeline.Snapshot

	// Network is the full network as of the end of the step.
	Network graph.Snapshot
}

// SimulationResult captures all steps and the backing store.
type SimulationResult struct {
	RunID string
	Steps []StepResult
	Store *store.SQLiteHistoryStore
}

// Status returns proposal id's status at step index i, or "" if the
// proposal did not exist yet.
func (r SimulationResult) Status(i, id int) models.ProposalStatus {
	for _, p := range r.Steps[i].Network.Proposals {
		if p.ID == id {
			return p.Status
		}
	}
	return ""
}

// Final returns the last recorded step.
func (r SimulationResult) Final() StepResult {
	return r.Steps[len(r.Steps)-1]
}
