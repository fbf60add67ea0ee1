package mcp

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/pipeline"
	"github.com/nvandessel/conviction/internal/ratelimit"
	"github.com/nvandessel/conviction/internal/simulation"
	"github.com/nvandessel/conviction/internal/store"
	"github.com/nvandessel/conviction/internal/visualization"
)

// MaxSteps bounds the length of a run started through the server.
const MaxSteps = 1000

// registerTools registers all conviction MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "conviction_simulate",
		Description: "Run a conviction voting simulation and record it in the run history",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "conviction_runs",
		Description: "List recorded simulation runs, newest first",
	}, s.handleRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "conviction_steps",
		Description: "Get the per-step history of a recorded run (funding pool, sentiment, proposal counts, accepted and resolved proposals)",
	}, s.handleSteps)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "conviction_network",
		Description: "Render the participant/proposal network of a recorded run in DOT (Graphviz), JSON, or HTML format",
	}, s.handleNetwork)
}

// registerResources registers MCP resources for reading run summaries.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         "conviction://runs/latest",
		Name:        "conviction-latest-run",
		Description: "Summary of the most recent simulation run.",
		MIMEType:    "text/markdown",
	}, s.handleLatestRunResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: "conviction://runs/{id}",
		Name:        "conviction-run",
		Description: "Summary of a recorded simulation run.",
		MIMEType:    "text/markdown",
	}, s.handleRunResource)
}

// handleSimulate implements the conviction_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	params := map[string]interface{}{"steps": args.Steps, "participants": args.Participants, "proposals": args.Proposals}
	if args.Seed != nil {
		params["seed"] = *args.Seed
	}
	defer func() {
		s.auditTool("conviction_simulate", start, retErr, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "conviction_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	cfg := *s.base
	seed := rand.Uint64()
	if args.Seed != nil {
		seed = *args.Seed
	}
	cfg.Simulation.Seed = &seed
	if args.Steps != 0 {
		cfg.Simulation.Steps = args.Steps
	}
	if cfg.Simulation.Steps > MaxSteps {
		return nil, SimulateOutput{}, fmt.Errorf("steps must be at most %d, got %d", MaxSteps, cfg.Simulation.Steps)
	}
	if args.Participants != 0 {
		cfg.Bootstrap.Participants = args.Participants
	}
	if args.Proposals != 0 {
		cfg.Bootstrap.Proposals = args.Proposals
	}
	if args.Alpha != nil {
		cfg.Conviction.Alpha = *args.Alpha
	}
	if args.Beta != nil {
		cfg.Conviction.Beta = *args.Beta
	}
	if args.Rho != nil {
		cfg.Conviction.Rho = *args.Rho
	}
	if args.HatchRaise != nil {
		cfg.Commons.HatchRaise = *args.HatchRaise
	}

	save := args.Save == nil || *args.Save
	opts := simulation.Options{Logger: s.logger}
	if save {
		opts.Store = s.store
	}

	sim, err := simulation.New(&cfg, opts)
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	result, err := sim.Run(ctx)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("run %s: %w", sim.RunID(), err)
	}

	out := SimulateOutput{
		RunID: result.RunID,
		Seed:  result.Seed,
		Steps: len(result.Steps) - 1,
		Final: result.Steps[len(result.Steps)-1],
		Saved: save,
	}
	for _, snap := range result.Steps {
		out.Accepted += len(snap.Accepted)
		out.Completed += len(snap.Completed)
		out.Failed += len(snap.Failed)
	}
	out.Message = fmt.Sprintf("Simulated %d steps: %d proposals funded, %d completed, %d failed; funding pool %.2f, sentiment %.3f",
		out.Steps, out.Accepted, out.Completed, out.Failed, out.Final.FundingPool, out.Final.Sentiment)

	return nil, out, nil
}

// handleRuns implements the conviction_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("conviction_runs", start, retErr, sanitizeToolParams(map[string]interface{}{"limit": args.Limit}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "conviction_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("list runs: %w", err)
	}

	items := make([]RunListItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, RunListItem{
			ID:         r.ID,
			Seed:       r.Seed,
			Steps:      r.Steps,
			Status:     string(r.Status),
			CreatedAt:  r.CreatedAt,
			FinishedAt: r.FinishedAt,
			Error:      r.Error,
		})
	}
	return nil, RunsOutput{Runs: items, Count: len(items)}, nil
}

// handleSteps implements the conviction_steps tool.
func (s *Server) handleSteps(ctx context.Context, req *sdk.CallToolRequest, args StepsInput) (_ *sdk.CallToolResult, _ StepsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("conviction_steps", start, retErr, sanitizeToolParams(map[string]interface{}{"run_id": args.RunID}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "conviction_steps"); err != nil {
		return nil, StepsOutput{}, err
	}
	if args.RunID == "" {
		return nil, StepsOutput{}, fmt.Errorf("run_id is required")
	}
	if args.From < 0 || (args.To != 0 && args.To < args.From) {
		return nil, StepsOutput{}, fmt.Errorf("invalid step range [%d, %d]", args.From, args.To)
	}

	steps, err := s.store.Steps(ctx, args.RunID)
	if err != nil {
		return nil, StepsOutput{}, err
	}

	selected := make([]pipeline.Snapshot, 0, len(steps))
	for _, snap := range steps {
		if snap.Step < args.From || (args.To != 0 && snap.Step > args.To) {
			continue
		}
		selected = append(selected, snap)
	}
	return nil, StepsOutput{RunID: args.RunID, Steps: selected, Count: len(selected)}, nil
}

// handleNetwork implements the conviction_network tool.
func (s *Server) handleNetwork(ctx context.Context, req *sdk.CallToolRequest, args NetworkInput) (_ *sdk.CallToolResult, _ NetworkOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("conviction_network", start, retErr, sanitizeToolParams(map[string]interface{}{
			"run_id": args.RunID,
			"format": args.Format,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "conviction_network"); err != nil {
		return nil, NetworkOutput{}, err
	}
	if args.RunID == "" {
		return nil, NetworkOutput{}, fmt.Errorf("run_id is required")
	}

	net, step, err := s.store.LoadNetwork(ctx, args.RunID)
	if err != nil {
		return nil, NetworkOutput{}, err
	}
	opts := visualization.Options{MinAffinity: args.MinAffinity}
	data := visualization.RenderJSON(*net, opts)
	nodeCount, _ := data["node_count"].(int)
	edgeCount, _ := data["edge_count"].(int)

	format := args.Format
	if format == "" {
		format = string(visualization.FormatJSON)
	}
	out := NetworkOutput{Format: format, Step: step, NodeCount: nodeCount, EdgeCount: edgeCount}

	switch visualization.Format(format) {
	case visualization.FormatDOT:
		out.Graph = visualization.RenderDOT(*net, opts)
	case visualization.FormatJSON:
		out.Graph = data
	case visualization.FormatHTML:
		steps, err := s.store.Steps(ctx, args.RunID)
		if err != nil {
			return nil, NetworkOutput{}, err
		}
		html, err := visualization.RenderHTML(args.RunID, step, *net, steps)
		if err != nil {
			return nil, NetworkOutput{}, fmt.Errorf("render HTML: %w", err)
		}
		out.Graph = string(html)
	default:
		return nil, NetworkOutput{}, fmt.Errorf("unsupported format %q (use 'dot', 'json', or 'html')", format)
	}
	return nil, out, nil
}

func (s *Server) handleLatestRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	runs, err := s.store.ListRuns(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	text := "# Simulation runs\n\nNo runs recorded yet. Start one with `conviction_simulate`.\n"
	if len(runs) > 0 {
		if text, err = s.runSummary(ctx, runs[0]); err != nil {
			return nil, err
		}
	}
	return markdownResult("conviction://runs/latest", text), nil
}

func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, "conviction://runs/")
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid run URI %q", uri)
	}

	run, err := s.store.GetRun(ctx, id)
	if errors.Is(err, store.ErrRunNotFound) {
		return nil, sdk.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, err
	}
	text, err := s.runSummary(ctx, *run)
	if err != nil {
		return nil, err
	}
	return markdownResult(uri, text), nil
}

// runSummary renders a run and its final step as markdown.
func (s *Server) runSummary(ctx context.Context, run store.Run) (string, error) {
	steps, err := s.store.Steps(ctx, run.ID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run %s\n\n", run.ID)
	fmt.Fprintf(&sb, "- status: %s\n- seed: %d\n- steps: %d\n- started: %s\n",
		run.Status, run.Seed, run.Steps, run.CreatedAt.Format(time.RFC3339))
	if run.Error != "" {
		fmt.Fprintf(&sb, "- error: %s\n", run.Error)
	}
	if len(steps) == 0 {
		return sb.String(), nil
	}

	final := steps[len(steps)-1]
	var accepted, completed, failed int
	for _, snap := range steps {
		accepted += len(snap.Accepted)
		completed += len(snap.Completed)
		failed += len(snap.Failed)
	}
	fmt.Fprintf(&sb, "\n## Step %d\n\n", final.Step)
	fmt.Fprintf(&sb, "| funding pool | token supply | sentiment | participants |\n|---|---|---|---|\n| %.2f | %.2f | %.3f | %d |\n\n",
		final.FundingPool, final.TokenSupply, final.Sentiment, final.Participants)
	sb.WriteString("| status | proposals |\n|---|---|\n")
	for _, status := range models.AllStatuses {
		fmt.Fprintf(&sb, "| %s | %d |\n", status, final.Statuses[status])
	}
	fmt.Fprintf(&sb, "\nOver the run: %d funded, %d completed, %d failed.\n", accepted, completed, failed)
	return sb.String(), nil
}

func markdownResult(uri, text string) *sdk.ReadResourceResult {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: uri, MIMEType: "text/markdown", Text: text},
		},
	}
}
