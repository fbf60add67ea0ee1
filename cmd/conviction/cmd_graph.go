package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nvandessel/conviction/internal/store"
	"github.com/nvandessel/conviction/internal/visualization"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [run-id]",
		Short: "Visualize the network of a run",
		Long: `Output the latest saved network of a run (default the most recent run)
in DOT (Graphviz), JSON, or HTML report format.

Examples:
  conviction graph | dot -Tsvg > network.svg
  conviction graph --format json --min-affinity 0.5
  conviction graph --format html --serve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			serve, _ := cmd.Flags().GetBool("serve")
			minAffinity, _ := cmd.Flags().GetFloat64("min-affinity")
			hideSupport, _ := cmd.Flags().GetBool("hide-support")
			ctx := cmd.Context()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			hs, err := openHistory(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer hs.Close()

			runID, err := resolveRunID(ctx, hs, args)
			if err != nil {
				return err
			}
			opts := visualization.Options{MinAffinity: minAffinity, HideSupport: hideSupport}

			switch visualization.Format(format) {
			case visualization.FormatDOT:
				snap, _, err := hs.LoadNetwork(ctx, runID)
				if err != nil {
					return fmt.Errorf("load network: %w", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(*snap, opts))

			case visualization.FormatJSON:
				snap, _, err := hs.LoadNetwork(ctx, runID)
				if err != nil {
					return fmt.Errorf("load network: %w", err)
				}
				if err := writeJSON(cmd.OutOrStdout(), visualization.RenderJSON(*snap, opts)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}

			case visualization.FormatHTML:
				if serve {
					return runGraphServer(cmd, hs, runID, noOpen)
				}
				return writeStaticHTML(cmd, hs, runID, output, noOpen)

			default:
				return fmt.Errorf("unsupported format %q (use 'dot', 'json', or 'html')", format)
			}

			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (html format only)")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
	cmd.Flags().Bool("serve", false, "Serve the report and history API on a local port")
	cmd.Flags().Float64("min-affinity", 0, "Hide unstaked support edges below this affinity")
	cmd.Flags().Bool("hide-support", false, "Hide support edges")

	return cmd
}

// writeStaticHTML renders the run report to a self-contained HTML file.
func writeStaticHTML(cmd *cobra.Command, hs store.HistoryStore, runID, output string, noOpen bool) error {
	ctx := cmd.Context()
	snap, step, err := hs.LoadNetwork(ctx, runID)
	if err != nil {
		return fmt.Errorf("load network: %w", err)
	}
	steps, err := hs.Steps(ctx, runID)
	if err != nil {
		return fmt.Errorf("load steps: %w", err)
	}

	htmlBytes, err := visualization.RenderHTML(runID, step, *snap, steps)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}

	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "conviction-"+runID+".html")
	}

	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", outPath)

	if !noOpen {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}

// runGraphServer starts the report server and blocks until Ctrl-C.
func runGraphServer(cmd *cobra.Command, hs store.HistoryStore, runID string, noOpen bool) error {
	srv := visualization.NewServer(hs, runID)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && srv.Addr() == "" {
		time.Sleep(10 * time.Millisecond)
	}

	addr := srv.Addr()
	if addr == "" {
		stop()
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Report server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
