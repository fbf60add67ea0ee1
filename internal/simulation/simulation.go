package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/conviction/internal/bootstrap"
	"github.com/nvandessel/conviction/internal/commons"
	"github.com/nvandessel/conviction/internal/config"
	"github.com/nvandessel/conviction/internal/conviction"
	"github.com/nvandessel/conviction/internal/graph"
	"github.com/nvandessel/conviction/internal/lifecycle"
	"github.com/nvandessel/conviction/internal/logging"
	"github.com/nvandessel/conviction/internal/metrics"
	"github.com/nvandessel/conviction/internal/pipeline"
	"github.com/nvandessel/conviction/internal/sampling"
	"github.com/nvandessel/conviction/internal/store"
)

// Options are the optional collaborators of a Simulation. The zero value
// runs without persistence, metrics or decision logging.
type Options struct {
	// RunID identifies the run; a random UUID is used when empty.
	RunID string

	Store     store.HistoryStore
	Metrics   *metrics.Metrics
	Decisions *logging.DecisionLogger
	Logger    *slog.Logger

	// NetworkEvery saves the network every n steps. The initial and final
	// networks are always saved when a store is set.
	NetworkEvery int

	// Sampler overrides the seeded random source.
	Sampler sampling.Sampler

	// OnStep, when non-nil, is called after every completed step.
	OnStep func(snap pipeline.Snapshot, s *pipeline.State)
}

// Simulation is one run of the model.
type Simulation struct {
	cfg      *config.Config
	opts     Options
	params   pipeline.Params
	pipeline *pipeline.Pipeline
	state    *pipeline.State
	history  *pipeline.MemoryHistory
	step     int
}

// Result is the outcome of a completed run.
type Result struct {
	RunID   string              `json:"run_id"`
	Seed    uint64              `json:"seed"`
	Steps   []pipeline.Snapshot `json:"steps"`
	Network graph.Snapshot      `json:"network"`
}

// Params converts configuration into the parameters seen by step functions.
func Params(cfg *config.Config) pipeline.Params {
	trigger := conviction.Threshold{
		Alpha: cfg.Conviction.Alpha,
		Beta:  cfg.Conviction.Beta,
		Rho:   cfg.Conviction.Rho,
	}
	return pipeline.Params{
		Alpha:                  cfg.Conviction.Alpha,
		MinSupport:             cfg.Conviction.MinSupport,
		MinProposalAge:         cfg.Conviction.MinProposalAgeDays,
		Trigger:                trigger.Func(),
		SentimentDecay:         cfg.Sentiment.Decay,
		SentimentSensitivity:   cfg.Sentiment.Sensitivity,
		DecayTerminalConflicts: cfg.Sentiment.DecayTerminalConflicts,
		Rates: lifecycle.Rates{
			Completion: cfg.Lifecycle.BaseCompletionRate,
			Failure:    cfg.Lifecycle.BaseFailureRate,
		},
		ProposalScaleFactor: cfg.Arrival.ProposalScaleFactor,
		ConflictRate:        cfg.Arrival.ConflictRate,
	}
}

// New validates cfg, opens the commons and bootstraps the initial network.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Sampler == nil {
		opts.Sampler = sampling.NewRandom(cfg.SeedValue())
	}

	reserve, err := commons.New(commons.Hatch{
		Raise:   cfg.Commons.HatchRaise,
		Supply:  cfg.Commons.TokenSupply,
		Tribute: cfg.Commons.HatchTribute,
		Kappa:   cfg.Commons.Kappa,
	})
	if err != nil {
		return nil, fmt.Errorf("opening commons: %w", err)
	}

	params := Params(cfg)
	network, err := bootstrap.Build(bootstrap.Options{
		Participants:        cfg.Bootstrap.Participants,
		Proposals:           cfg.Bootstrap.Proposals,
		Holdings:            cfg.Bootstrap.Holdings,
		VestingCliffDays:    cfg.Bootstrap.VestingCliffDays,
		VestingHalfLifeDays: cfg.Bootstrap.VestingHalfLifeDays,
		ConflictRate:        cfg.Bootstrap.ConflictRate,
		InfluenceRate:       cfg.Bootstrap.InfluenceRate,
		ScaleFactor:         cfg.Arrival.ProposalScaleFactor,
		Trigger:             params.Trigger,
	}, reserve, opts.Sampler)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping network: %w", err)
	}

	sim := &Simulation{
		cfg:      cfg,
		opts:     opts,
		params:   params,
		pipeline: pipeline.Default(),
		state: &pipeline.State{
			Network:   network,
			Reserve:   reserve,
			Sentiment: cfg.Sentiment.Initial,
			Sampler:   opts.Sampler,
		},
		history: &pipeline.MemoryHistory{},
	}
	sim.history.Append(pipeline.TakeSnapshot(0, sim.state, nil))

	if opts.Decisions != nil {
		sim.pipeline.Observe(sim.logBlock)
	}
	return sim, nil
}

// RunID returns the run identifier.
func (s *Simulation) RunID() string { return s.opts.RunID }

// State exposes the live state. It must not be modified while a step runs.
func (s *Simulation) State() *pipeline.State { return s.state }

// History returns the snapshots recorded so far, starting with step 0.
func (s *Simulation) History() *pipeline.MemoryHistory { return s.history }

// CurrentStep returns the number of steps taken.
func (s *Simulation) CurrentStep() int { return s.step }

// Step advances the simulation by one step.
func (s *Simulation) Step(ctx context.Context) (pipeline.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Snapshot{}, err
	}

	next := s.step + 1
	start := time.Now()
	decisions, err := s.pipeline.Step(&s.params, next, s.history, s.state)
	if err != nil {
		s.opts.Metrics.ObserveError(s.opts.RunID)
		return pipeline.Snapshot{}, err
	}
	s.step = next

	snap := pipeline.TakeSnapshot(next, s.state, decisions)
	s.history.Append(snap)
	s.opts.Metrics.ObserveStep(snap, time.Since(start))
	if s.opts.OnStep != nil {
		s.opts.OnStep(snap, s.state)
	}

	s.opts.Logger.Debug("step complete",
		"run", s.opts.RunID,
		"step", next,
		"funding_pool", snap.FundingPool,
		"sentiment", snap.Sentiment,
		"accepted", len(snap.Accepted),
		"completed", len(snap.Completed),
		"failed", len(snap.Failed))

	if s.opts.Store != nil {
		if err := s.opts.Store.AppendStep(ctx, s.opts.RunID, snap); err != nil {
			return snap, fmt.Errorf("recording step %d: %w", next, err)
		}
		if s.opts.NetworkEvery > 0 && next%s.opts.NetworkEvery == 0 {
			if err := s.saveNetwork(ctx); err != nil {
				return snap, err
			}
		}
	}
	return snap, nil
}

// Run executes the configured number of steps. Cancellation is checked
// between steps; a cancelled run is recorded as failed.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	steps := s.cfg.Simulation.Steps
	logger := s.opts.Logger.With("run", s.opts.RunID)

	if s.opts.Store != nil {
		if err := s.begin(ctx); err != nil {
			return nil, err
		}
	}
	logger.Info("simulation started", "seed", s.cfg.SeedValue(), "steps", steps,
		"participants", len(s.state.Network.Participants()))

	for s.step < steps {
		if _, err := s.Step(ctx); err != nil {
			logger.Error("simulation failed", "step", s.step+1, "error", err)
			s.finish(store.RunFailed, err)
			return nil, err
		}
	}

	if s.opts.Store != nil {
		if err := s.saveNetwork(ctx); err != nil {
			s.finish(store.RunFailed, err)
			return nil, err
		}
	}
	s.finish(store.RunCompleted, nil)

	final := s.history.At(s.history.Len() - 1)
	logger.Info("simulation finished",
		"funding_pool", final.FundingPool,
		"sentiment", final.Sentiment,
		"statuses", final.Statuses)

	return &Result{
		RunID:   s.opts.RunID,
		Seed:    s.cfg.SeedValue(),
		Steps:   s.history.All(),
		Network: s.state.Network.Export(),
	}, nil
}

func (s *Simulation) begin(ctx context.Context) error {
	cfgJSON, err := json.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	run := store.Run{
		ID:     s.opts.RunID,
		Seed:   s.cfg.SeedValue(),
		Steps:  s.cfg.Simulation.Steps,
		Status: store.RunRunning,
		Config: cfgJSON,
	}
	if err := s.opts.Store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	if err := s.opts.Store.AppendStep(ctx, s.opts.RunID, s.history.At(0)); err != nil {
		return fmt.Errorf("recording step 0: %w", err)
	}
	return s.saveNetwork(ctx)
}

func (s *Simulation) saveNetwork(ctx context.Context) error {
	if err := s.opts.Store.SaveNetwork(ctx, s.opts.RunID, s.step, s.state.Network.Export()); err != nil {
		return fmt.Errorf("saving network at step %d: %w", s.step, err)
	}
	return nil
}

// finish records the final run status. It uses a fresh context so a
// cancelled run is still marked failed.
func (s *Simulation) finish(status store.RunStatus, runErr error) {
	if s.opts.Store == nil {
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.opts.Store.FinishRun(ctx, s.opts.RunID, status, msg); err != nil {
		s.opts.Logger.Warn("failed to record run status", "run", s.opts.RunID, "error", err)
	}
}

func (s *Simulation) logBlock(step int, block string, d pipeline.Decision, vars []pipeline.Variable) {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = string(v)
	}
	s.opts.Decisions.LogBlock(s.opts.RunID, step, block, d.Kind(), names, d)
}
