package simulation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nvandessel/conviction/internal/config"
	"github.com/nvandessel/conviction/internal/logging"
	"github.com/nvandessel/conviction/internal/metrics"
	"github.com/nvandessel/conviction/internal/pipeline"
	"github.com/nvandessel/conviction/internal/store"
)

func testConfig(seed uint64, steps int) *config.Config {
	cfg := config.Default()
	cfg.Simulation.Seed = &seed
	cfg.Simulation.Steps = steps
	return cfg
}

func TestNew_MissingSeed(t *testing.T) {
	cfg := config.Default()
	_, err := New(cfg, Options{})
	if !errors.Is(err, config.ErrMissingSeed) {
		t.Fatalf("New() error = %v, want ErrMissingSeed", err)
	}
}

func TestNew_InitialState(t *testing.T) {
	cfg := testConfig(3, 10)
	sim, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if sim.RunID() == "" {
		t.Error("RunID() should default to a generated id")
	}
	if got := len(sim.State().Network.Participants()); got != cfg.Bootstrap.Participants {
		t.Errorf("participants = %d, want %d", got, cfg.Bootstrap.Participants)
	}
	if got := len(sim.State().Network.Proposals()); got != cfg.Bootstrap.Proposals {
		t.Errorf("proposals = %d, want %d", got, cfg.Bootstrap.Proposals)
	}
	if sim.History().Len() != 1 || sim.History().At(0).Step != 0 {
		t.Errorf("history should start with the step 0 snapshot")
	}
	if sim.State().Sentiment != cfg.Sentiment.Initial {
		t.Errorf("sentiment = %v, want %v", sim.State().Sentiment, cfg.Sentiment.Initial)
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func() *Result {
		sim, err := New(testConfig(99, 40), Options{RunID: "same"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		res, err := sim.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return res
	}

	a, b := run(), run()
	if !reflect.DeepEqual(a.Steps, b.Steps) {
		t.Error("two runs with the same seed produced different histories")
	}
	if !reflect.DeepEqual(a.Network, b.Network) {
		t.Error("two runs with the same seed produced different networks")
	}
}

func TestRun_PersistsHistory(t *testing.T) {
	ctx := context.Background()
	hs, err := store.NewSQLiteHistoryStore(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteHistoryStore() error = %v", err)
	}
	defer hs.Close()

	sim, err := New(testConfig(5, 12), Options{RunID: "persisted", Store: hs, NetworkEvery: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := sim.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	run, err := hs.GetRun(ctx, "persisted")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != store.RunCompleted || run.Seed != 5 || run.Steps != 12 {
		t.Errorf("run = %+v", run)
	}
	if !strings.Contains(string(run.Config), `"alpha"`) {
		t.Errorf("run config not recorded: %s", run.Config)
	}

	steps, err := hs.Steps(ctx, "persisted")
	if err != nil {
		t.Fatalf("Steps() error = %v", err)
	}
	if len(steps) != len(res.Steps) {
		t.Fatalf("stored %d steps, want %d", len(steps), len(res.Steps))
	}
	for i := range steps {
		if steps[i].Step != res.Steps[i].Step || steps[i].FundingPool != res.Steps[i].FundingPool {
			t.Errorf("stored step %d = %+v, want %+v", i, steps[i], res.Steps[i])
		}
	}

	net, step, err := hs.LoadNetwork(ctx, "persisted")
	if err != nil {
		t.Fatalf("LoadNetwork() error = %v", err)
	}
	if step != 12 {
		t.Errorf("latest network step = %d, want 12", step)
	}
	if len(net.Proposals) != len(res.Network.Proposals) {
		t.Errorf("saved network has %d proposals, want %d", len(net.Proposals), len(res.Network.Proposals))
	}
}

func TestRun_Cancelled(t *testing.T) {
	hs := store.NewInMemoryHistoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	steps := 0
	sim, err := New(testConfig(8, 50), Options{
		RunID: "cancelled",
		Store: hs,
		OnStep: func(pipeline.Snapshot, *pipeline.State) {
			steps++
			if steps == 3 {
				cancel()
			}
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := sim.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if sim.CurrentStep() != 3 {
		t.Errorf("CurrentStep() = %d, want 3", sim.CurrentStep())
	}

	run, err := hs.GetRun(context.Background(), "cancelled")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != store.RunFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
}

func TestRun_DecisionLogAndMetrics(t *testing.T) {
	dir := t.TempDir()
	dl := logging.NewDecisionLogger(dir, "trace")
	if dl == nil {
		t.Fatal("NewDecisionLogger() returned nil at trace level")
	}
	m := metrics.New("")

	sim, err := New(testConfig(11, 4), Options{RunID: "traced", Decisions: dl, Metrics: m})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	dl.Close()

	data, err := os.ReadFile(filepath.Join(dir, "decisions.jsonl"))
	if err != nil {
		t.Fatalf("reading decision log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Four blocks per step.
	if len(lines) != 16 {
		t.Errorf("decision log has %d lines, want 16", len(lines))
	}
	if !strings.Contains(lines[0], `"block":"arrivals"`) || !strings.Contains(lines[0], `"payload"`) {
		t.Errorf("first line = %s", lines[0])
	}

	if got := testutil.ToFloat64(m.StepsTotal); got != 4 {
		t.Errorf("steps_total = %v, want 4", got)
	}
}

func TestParams(t *testing.T) {
	cfg := config.Default()
	p := Params(cfg)

	if p.Alpha != cfg.Conviction.Alpha || p.MinProposalAge != cfg.Conviction.MinProposalAgeDays {
		t.Errorf("Params() = %+v", p)
	}
	if p.Rates.Completion != cfg.Lifecycle.BaseCompletionRate || p.Rates.Failure != cfg.Lifecycle.BaseFailureRate {
		t.Errorf("Params().Rates = %+v", p.Rates)
	}
	if p.Trigger == nil {
		t.Fatal("Params().Trigger is nil")
	}
	if got := p.Trigger(10, 1000, 1000); got <= 0 {
		t.Errorf("Trigger(10, 1000, 1000) = %v, want positive", got)
	}
}
