package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/pipeline"
	"github.com/nvandessel/conviction/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			hs, err := openHistory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer hs.Close()

			runs, err := hs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSEED\tSTEPS\tSTATUS\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.Seed, r.Steps, r.Status, r.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to show (0 for all)")
	cmd.AddCommand(newRunsShowCmd())

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a run and its final state (default latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
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

			id, err := resolveRunID(ctx, hs, args)
			if err != nil {
				return err
			}
			run, err := hs.GetRun(ctx, id)
			if err != nil {
				return err
			}
			steps, err := hs.Steps(ctx, id)
			if err != nil {
				return err
			}

			if jsonOut {
				out := map[string]interface{}{"run": run}
				if len(steps) > 0 {
					out["final"] = steps[len(steps)-1]
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:     %s\n", run.ID)
			fmt.Fprintf(out, "Seed:    %d\n", run.Seed)
			fmt.Fprintf(out, "Status:  %s\n", run.Status)
			fmt.Fprintf(out, "Steps:   %d recorded of %d\n", len(steps), run.Steps+1)
			fmt.Fprintf(out, "Created: %s\n", run.CreatedAt.Local().Format(time.DateTime))
			if run.FinishedAt != nil {
				fmt.Fprintf(out, "Took:    %s\n", run.FinishedAt.Sub(run.CreatedAt).Round(time.Millisecond))
			}
			if run.Error != "" {
				fmt.Fprintf(out, "Error:   %s\n", run.Error)
			}
			if len(steps) > 0 {
				final := steps[len(steps)-1]
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Final state (step %d):\n", final.Step)
				fmt.Fprintf(out, "  funding pool: %.2f\n", final.FundingPool)
				fmt.Fprintf(out, "  sentiment:    %.3f\n", final.Sentiment)
				for _, status := range models.AllStatuses {
					fmt.Fprintf(out, "  %-13s %d\n", string(status)+":", final.Statuses[status])
				}
			}
			return nil
		},
	}
}

func newStepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps [run-id]",
		Short: "Print the per-step history of a run (default latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			from, _ := cmd.Flags().GetInt("from")
			to, _ := cmd.Flags().GetInt("to")
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

			id, err := resolveRunID(ctx, hs, args)
			if err != nil {
				return err
			}
			steps, err := hs.Steps(ctx, id)
			if err != nil {
				return err
			}
			steps = stepRange(steps, from, to)

			if jsonOut {
				if steps == nil {
					steps = []pipeline.Snapshot{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"run_id": id,
					"steps":  steps,
				})
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "STEP\tPOOL\tSUPPLY\tSENTIMENT\tPARTICIPANTS\tCAND\tACTIVE\tDONE\tFAILED\tFUNDED\t")
			for _, s := range steps {
				fmt.Fprintf(tw, "%d\t%.2f\t%.2f\t%.3f\t%d\t%d\t%d\t%d\t%d\t%v\t\n",
					s.Step, s.FundingPool, s.TokenSupply, s.Sentiment, s.Participants,
					s.Statuses[models.StatusCandidate], s.Statuses[models.StatusActive],
					s.Statuses[models.StatusCompleted], s.Statuses[models.StatusFailed],
					s.Accepted)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int("from", 0, "First step to show")
	cmd.Flags().Int("to", -1, "Last step to show (-1 for the end)")

	return cmd
}

// stepRange keeps the snapshots with from <= step <= to; a negative to means
// no upper bound.
func stepRange(steps []pipeline.Snapshot, from, to int) []pipeline.Snapshot {
	var out []pipeline.Snapshot
	for _, s := range steps {
		if s.Step < from || (to >= 0 && s.Step > to) {
			continue
		}
		out = append(out, s)
	}
	return out
}
