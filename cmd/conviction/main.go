package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nvandessel/conviction/internal/config"
	"github.com/nvandessel/conviction/internal/logging"
	"github.com/nvandessel/conviction/internal/store"
	"github.com/spf13/cobra"
)

// Set via -ldflags at release build time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conviction",
		Short: "Conviction voting commons simulator",
		Long: `conviction simulates a token-governed commons that funds proposals
through conviction voting.

Participants stake tokens on proposals, conviction accumulates over time,
and proposals whose conviction crosses their trigger are funded from the
commons pool. Runs are seeded and reproducible, and their history is kept
in a local SQLite database for inspection, export and visualization.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.conviction/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "History database path (overrides store.path)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newRunsCmd(),
		newStepsCmd(),
		newGraphCmd(),
		newExportCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig resolves the configuration for a command: the --config file when
// given, the default locations otherwise, then the --db and --log-level flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Store.Path = db
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// openHistory opens the SQLite history database named by cfg.
func openHistory(ctx context.Context, cfg *config.Config) (*store.SQLiteHistoryStore, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	hs, err := store.NewSQLiteHistoryStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return hs, nil
}

// newLogger returns the operational logger. Logs go to stderr so stdout
// stays parseable.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// decisionLogger opens decisions.jsonl next to the history database, or
// returns nil when the level is below debug.
func decisionLogger(cfg *config.Config) *logging.DecisionLogger {
	path, err := cfg.StorePath()
	if err != nil {
		return nil
	}
	return logging.NewDecisionLogger(filepath.Dir(path), cfg.Logging.Level)
}

// latestRunID returns the most recent run, for commands whose run argument
// is optional.
func latestRunID(ctx context.Context, hs store.HistoryStore) (string, error) {
	runs, err := hs.ListRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs recorded yet; start one with 'conviction run --seed N'")
	}
	return runs[0].ID, nil
}

// resolveRunID returns args[0] when present and the latest run otherwise.
func resolveRunID(ctx context.Context, hs store.HistoryStore, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	return latestRunID(ctx, hs)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
