package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/pipeline"
)

// InMemoryHistoryStore is a HistoryStore kept in process memory.
// Saved networks are deep-copied through JSON so callers cannot alias them.
type InMemoryHistoryStore struct {
	mu       sync.RWMutex
	runs     map[string]*Run
	steps    map[string]map[int]pipeline.Snapshot
	networks map[string]map[int][]byte
}

// NewInMemoryHistoryStore creates an empty store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{
		runs:     make(map[string]*Run),
		steps:    make(map[string]map[int]pipeline.Snapshot),
		networks: make(map[string]map[int][]byte),
	}
}

func (s *InMemoryHistoryStore) CreateRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	run.Config = append([]byte(nil), run.Config...)
	s.runs[run.ID] = &run
	s.steps[run.ID] = make(map[int]pipeline.Snapshot)
	s.networks[run.ID] = make(map[int][]byte)
	return nil
}

func (s *InMemoryHistoryStore) FinishRun(ctx context.Context, id string, status RunStatus, runErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
	run.Error = runErr
	return nil
}

func (s *InMemoryHistoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	cp := *run
	return &cp, nil
}

func (s *InMemoryHistoryStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(a, b int) bool {
		if !runs[a].CreatedAt.Equal(runs[b].CreatedAt) {
			return runs[a].CreatedAt.After(runs[b].CreatedAt)
		}
		return runs[a].ID < runs[b].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *InMemoryHistoryStore) AppendStep(ctx context.Context, runID string, snap pipeline.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, ok := s.steps[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	steps[snap.Step] = snap
	return nil
}

func (s *InMemoryHistoryStore) Steps(ctx context.Context, runID string) ([]pipeline.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps, ok := s.steps[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	snaps := make([]pipeline.Snapshot, 0, len(steps))
	for _, snap := range steps {
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(a, b int) bool { return snaps[a].Step < snaps[b].Step })
	return snaps, nil
}

func (s *InMemoryHistoryStore) SaveNetwork(ctx context.Context, runID string, step int, net graph.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	networks, ok := s.networks[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	data, err := json.Marshal(net)
	if err != nil {
		return fmt.Errorf("failed to encode network: %w", err)
	}
	networks[step] = data
	return nil
}

func (s *InMemoryHistoryStore) LoadNetwork(ctx context.Context, runID string) (*graph.Snapshot, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	networks, ok := s.networks[runID]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	latest := -1
	for step := range networks {
		if step > latest {
			latest = step
		}
	}
	if latest < 0 {
		return nil, 0, fmt.Errorf("run %s has no saved network", runID)
	}
	var net graph.Snapshot
	if err := json.Unmarshal(networks[latest], &net); err != nil {
		return nil, 0, fmt.Errorf("failed to decode network: %w", err)
	}
	return &net, latest, nil
}

func (s *InMemoryHistoryStore) Close() error { return nil }

var (
	_ HistoryStore = (*InMemoryHistoryStore)(nil)
	_ HistoryStore = (*SQLiteHistoryStore)(nil)
)
