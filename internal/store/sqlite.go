package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/pipeline"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteHistoryStore implements HistoryStore on a SQLite database.
type SQLiteHistoryStore struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// NewSQLiteHistoryStore opens (creating if needed) the database at dbPath.
func NewSQLiteHistoryStore(ctx context.Context, dbPath string) (*SQLiteHistoryStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteHistoryStore{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteHistoryStore) Path() string { return s.path }

// CreateRun records a new run.
func (s *SQLiteHistoryStore) CreateRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seed, steps, status, config, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, strconv.FormatUint(run.Seed, 10), run.Steps, string(run.Status),
		nullString(run.Config), run.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun marks a run completed or failed.
func (s *SQLiteHistoryStore) FinishRun(ctx context.Context, id string, status RunStatus, runErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(timeLayout), runErr, id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun returns a run by id.
func (s *SQLiteHistoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, seed, steps, status, config, created_at, finished_at, error
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteHistoryStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, seed, steps, status, config, created_at, finished_at, error
		FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run        Run
		seed       string
		status     string
		config     sql.NullString
		createdAt  string
		finishedAt sql.NullString
		runErr     sql.NullString
	)
	if err := row.Scan(&run.ID, &seed, &run.Steps, &status, &config, &createdAt, &finishedAt, &runErr); err != nil {
		return nil, err
	}

	var err error
	if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("run %s: invalid seed %q: %w", run.ID, seed, err)
	}
	run.Status = RunStatus(status)
	if config.Valid {
		run.Config = []byte(config.String)
	}
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("run %s: invalid created_at: %w", run.ID, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: invalid finished_at: %w", run.ID, err)
		}
		run.FinishedAt = &t
	}
	run.Error = runErr.String
	return &run, nil
}

// AppendStep records the snapshot of one step.
func (s *SQLiteHistoryStore) AppendStep(ctx context.Context, runID string, snap pipeline.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode step %d: %w", snap.Step, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO steps
			(run_id, step, funding_pool, token_supply, sentiment,
			 candidates, active, completed, failed, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, snap.Step, snap.FundingPool, snap.TokenSupply, snap.Sentiment,
		snap.Statuses[models.StatusCandidate], snap.Statuses[models.StatusActive],
		snap.Statuses[models.StatusCompleted], snap.Statuses[models.StatusFailed],
		string(data))
	if err != nil {
		return fmt.Errorf("failed to append step %d of run %s: %w", snap.Step, runID, err)
	}
	return nil
}

// Steps returns the recorded snapshots of a run in step order.
func (s *SQLiteHistoryStore) Steps(ctx context.Context, runID string) ([]pipeline.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot FROM steps WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var snaps []pipeline.Snapshot
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var snap pipeline.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode step snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// SaveNetwork stores net as the network of runID at step.
func (s *SQLiteHistoryStore) SaveNetwork(ctx context.Context, runID string, step int, net graph.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"nodes", "edges"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE run_id = ? AND step = ?`, runID, step); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	insertNode := func(id int, kind graph.NodeKind, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO nodes (run_id, step, id, kind, data) VALUES (?, ?, ?, ?, ?)`,
			runID, step, id, string(kind), string(data))
		return err
	}
	for _, p := range net.Participants {
		if err := insertNode(p.ID, graph.KindParticipant, p); err != nil {
			return fmt.Errorf("failed to save participant %d: %w", p.ID, err)
		}
	}
	for _, p := range net.Proposals {
		if err := insertNode(p.ID, graph.KindProposal, p); err != nil {
			return fmt.Errorf("failed to save proposal %d: %w", p.ID, err)
		}
	}

	for _, e := range net.Edges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO edges (run_id, step, kind, source, target, weight, affinity, tokens, conviction)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, step, string(e.Kind), e.From, e.To, e.Weight, e.Affinity, e.Tokens, nullFloat(e.Conviction))
		if err != nil {
			return fmt.Errorf("failed to save %s edge %d->%d: %w", e.Kind, e.From, e.To, err)
		}
	}

	return tx.Commit()
}

// LoadNetwork returns the latest saved network of runID.
func (s *SQLiteHistoryStore) LoadNetwork(ctx context.Context, runID string) (*graph.Snapshot, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, 0, err
	}

	var step sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(step) FROM nodes WHERE run_id = ?`, runID).Scan(&step); err != nil {
		return nil, 0, fmt.Errorf("failed to find saved network: %w", err)
	}
	if !step.Valid {
		return nil, 0, fmt.Errorf("run %s has no saved network", runID)
	}

	net := graph.Snapshot{
		Participants: []models.Participant{},
		Proposals:    []models.Proposal{},
		Edges:        []graph.Edge{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, data FROM nodes WHERE run_id = ? AND step = ? ORDER BY id`, runID, step.Int64)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, data string
		if err := rows.Scan(&kind, &data); err != nil {
			return nil, 0, err
		}
		switch graph.NodeKind(kind) {
		case graph.KindParticipant:
			var p models.Participant
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return nil, 0, fmt.Errorf("failed to decode participant: %w", err)
			}
			net.Participants = append(net.Participants, p)
		case graph.KindProposal:
			var p models.Proposal
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return nil, 0, fmt.Errorf("failed to decode proposal: %w", err)
			}
			net.Proposals = append(net.Proposals, p)
		default:
			return nil, 0, fmt.Errorf("unknown node kind %q", kind)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT kind, source, target, weight, affinity, tokens, conviction
		FROM edges WHERE run_id = ? AND step = ? ORDER BY kind, source, target`, runID, step.Int64)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var (
			e          graph.Edge
			kind       string
			conviction sql.NullFloat64
		)
		if err := edgeRows.Scan(&kind, &e.From, &e.To, &e.Weight, &e.Affinity, &e.Tokens, &conviction); err != nil {
			return nil, 0, err
		}
		e.Kind = graph.EdgeKind(kind)
		if conviction.Valid {
			v := conviction.Float64
			e.Conviction = &v
		}
		net.Edges = append(net.Edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, 0, err
	}

	return &net, int(step.Int64), nil
}

func (s *SQLiteHistoryStore) requireRun(ctx context.Context, runID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return err
}

// Close closes the database.
func (s *SQLiteHistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nullString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
