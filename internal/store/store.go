// Package store defines the HistoryStore interface for recording simulation
// runs: their configuration, per-step snapshots and saved networks.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/pipeline"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run describes one simulation run.
type Run struct {
	ID         string          `json:"id"`
	Seed       uint64          `json:"seed"`
	Steps      int             `json:"steps"`
	Status     RunStatus       `json:"status"`
	Config     json.RawMessage `json:"config,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// HistoryStore records simulation runs.
type HistoryStore interface {
	// Run operations
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, runErr string) error
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Step history
	AppendStep(ctx context.Context, runID string, snap pipeline.Snapshot) error
	Steps(ctx context.Context, runID string) ([]pipeline.Snapshot, error)

	// SaveNetwork stores the network as of a step, replacing any saved
	// network for the same run and step.
	SaveNetwork(ctx context.Context, runID string, step int, net graph.Snapshot) error

	// LoadNetwork returns the latest saved network of a run and its step.
	LoadNetwork(ctx context.Context, runID string) (*graph.Snapshot, int, error)

	Close() error
}
