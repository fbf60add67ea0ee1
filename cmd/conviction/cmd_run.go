package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvandessel/conviction/internal/config"
	"github.com/nvandessel/conviction/internal/metrics"
	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/pipeline"
	"github.com/nvandessel/conviction/internal/simulation"
	"github.com/spf13/cobra"
)

// runSummary is the result of 'conviction run'.
type runSummary struct {
	RunID     string              `json:"run_id"`
	Seed      uint64              `json:"seed"`
	Steps     int                 `json:"steps"`
	Saved     bool                `json:"saved"`
	Final     pipeline.Snapshot   `json:"final"`
	Accepted  int                 `json:"accepted"`
	Statuses  models.StatusCounts `json:"statuses"`
	ElapsedMS int64               `json:"elapsed_ms"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a seeded simulation",
		Long: `Run a conviction voting simulation and record its history.

The seed is required, either with --seed, simulation.seed in the config
file, or CONVICTION_SEED. The same seed and config always reproduce the
same run.

Examples:
  conviction run --seed 42
  conviction run --seed 42 --steps 365 --metrics-addr :9090
  conviction run --config scenario.yaml --no-save --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			noSave, _ := cmd.Flags().GetBool("no-save")
			networkEvery, _ := cmd.Flags().GetInt("network-every")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			runID, _ := cmd.Flags().GetString("run-id")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				seed, _ := cmd.Flags().GetUint64("seed")
				cfg.Simulation.Seed = &seed
			}
			if cmd.Flags().Changed("steps") {
				cfg.Simulation.Steps, _ = cmd.Flags().GetInt("steps")
			}
			if err := cfg.Validate(); err != nil {
				if errors.Is(err, config.ErrMissingSeed) {
					return fmt.Errorf("%w (pass --seed N)", err)
				}
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(cmd, cfg)
			opts := simulation.Options{
				RunID:        runID,
				Logger:       logger,
				NetworkEvery: networkEvery,
			}

			if !noSave {
				hs, err := openHistory(ctx, cfg)
				if err != nil {
					return err
				}
				defer hs.Close()
				opts.Store = hs

				decisions := decisionLogger(cfg)
				defer decisions.Close()
				opts.Decisions = decisions
			}

			if metricsAddr != "" {
				opts.Metrics = metrics.New(metrics.DefaultNamespace)
				shutdown, err := serveMetrics(cmd, metricsAddr, opts.Metrics)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			sim, err := simulation.New(cfg, opts)
			if err != nil {
				return err
			}

			start := time.Now()
			result, err := sim.Run(ctx)
			if err != nil {
				return fmt.Errorf("run %s failed: %w", sim.RunID(), err)
			}

			summary := summarize(result, !noSave, time.Since(start))
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			printRunSummary(cmd, summary)
			return nil
		},
	}

	cmd.Flags().Uint64("seed", 0, "Random seed (required unless configured)")
	cmd.Flags().Int("steps", 0, "Number of simulated days (default from config)")
	cmd.Flags().Int("network-every", 10, "Save the network every N steps (0 saves only initial and final)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	cmd.Flags().String("run-id", "", "Run identifier (default random UUID)")
	cmd.Flags().Bool("no-save", false, "Don't record the run in the history database")

	return cmd
}

func summarize(result *simulation.Result, saved bool, elapsed time.Duration) runSummary {
	final := result.Steps[len(result.Steps)-1]
	accepted := 0
	for _, s := range result.Steps {
		accepted += len(s.Accepted)
	}
	return runSummary{
		RunID:     result.RunID,
		Seed:      result.Seed,
		Steps:     final.Step,
		Saved:     saved,
		Final:     final,
		Accepted:  accepted,
		Statuses:  final.Statuses,
		ElapsedMS: elapsed.Milliseconds(),
	}
}

func printRunSummary(cmd *cobra.Command, s runSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (seed %d)\n", s.RunID, s.Seed)
	fmt.Fprintf(out, "  steps:           %d\n", s.Steps)
	fmt.Fprintf(out, "  participants:    %d\n", s.Final.Participants)
	fmt.Fprintf(out, "  funding pool:    %.2f\n", s.Final.FundingPool)
	fmt.Fprintf(out, "  token supply:    %.2f\n", s.Final.TokenSupply)
	fmt.Fprintf(out, "  sentiment:       %.3f\n", s.Final.Sentiment)
	fmt.Fprintf(out, "  funded:          %d\n", s.Accepted)
	for _, status := range models.AllStatuses {
		fmt.Fprintf(out, "  %-16s %d\n", string(status)+":", s.Statuses[status])
	}
	if !s.Saved {
		fmt.Fprintln(out, "  (not saved)")
	}
}

// serveMetrics exposes m on addr until the returned function is called.
func serveMetrics(cmd *cobra.Command, addr string, m *metrics.Metrics) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %v\n", err)
		}
	}()
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics at http://%s/metrics\n", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
