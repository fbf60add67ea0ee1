package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nvandessel/conviction/internal/export"
	"github.com/nvandessel/conviction/internal/pipeline"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export the step history of a run",
		Long: `Export the per-step history of a run (default the most recent run).

The arrow format writes an Apache Arrow IPC stream that pandas, polars
and DuckDB read directly. The jsonl format writes one snapshot per line.

Examples:
  conviction export -o history.arrow
  conviction export 3f2c... --format jsonl > history.jsonl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			ctx := cmd.Context()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			hs, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer hs.Close()

			runID, err := resolveRunID(ctx, hs, args)
			if err != nil {
				return err
			}
			run, err := hs.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			steps, err := hs.Steps(ctx, runID)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			bw := bufio.NewWriter(w)
			switch format {
			case "arrow":
				err = export.WriteHistory(bw, export.Header{RunID: run.ID, Seed: run.Seed}, steps)
			case "jsonl":
				err = writeJSONLines(bw, steps)
			default:
				return fmt.Errorf("unsupported format %q (use 'arrow' or 'jsonl')", format)
			}
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d steps of run %s to %s\n", len(steps), run.ID, output)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "arrow", "Output format: arrow or jsonl")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")

	return cmd
}

func writeJSONLines(w io.Writer, steps []pipeline.Snapshot) error {
	enc := json.NewEncoder(w)
	for _, s := range steps {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}
