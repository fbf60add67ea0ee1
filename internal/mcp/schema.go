// Package mcp provides an MCP (Model Context Protocol) server for conviction.
package mcp

import (
	"time"

	"github.com/nvandessel/conviction/internal/pipeline"
)

// SimulateInput defines the input for the conviction_simulate tool. Zero
// values keep the server's configured defaults.
type SimulateInput struct {
	Seed         *uint64  `json:"seed,omitempty" jsonschema:"Random seed; a run with the same seed and parameters is reproducible. Random when omitted"`
	Steps        int      `json:"steps,omitempty" jsonschema:"Number of simulated days (max 1000)"`
	Participants int      `json:"participants,omitempty" jsonschema:"Number of initial participants (hatchers)"`
	Proposals    int      `json:"proposals,omitempty" jsonschema:"Number of initial proposals"`
	Alpha        *float64 `json:"alpha,omitempty" jsonschema:"Conviction decay factor in (0, 1)"`
	Beta         *float64 `json:"beta,omitempty" jsonschema:"Largest share of the funding pool one proposal may request"`
	Rho          *float64 `json:"rho,omitempty" jsonschema:"Trigger threshold scale"`
	HatchRaise   *float64 `json:"hatch_raise,omitempty" jsonschema:"Currency raised at the hatch"`
	Save         *bool    `json:"save,omitempty" jsonschema:"Record the run in the history store (default: true)"`
}

// SimulateOutput defines the output for the conviction_simulate tool.
type SimulateOutput struct {
	RunID     string            `json:"run_id" jsonschema:"Identifier of the run"`
	Seed      uint64            `json:"seed" jsonschema:"Seed the run used"`
	Steps     int               `json:"steps" jsonschema:"Number of simulated steps"`
	Final     pipeline.Snapshot `json:"final" jsonschema:"State summary after the last step"`
	Accepted  int               `json:"accepted" jsonschema:"Proposals funded over the run"`
	Completed int               `json:"completed" jsonschema:"Proposals completed over the run"`
	Failed    int               `json:"failed" jsonschema:"Proposals failed over the run"`
	Saved     bool              `json:"saved" jsonschema:"Whether the run was recorded"`
	Message   string            `json:"message" jsonschema:"Human-readable summary"`
}

// RunsInput defines the input for the conviction_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return (default 20)"`
}

// RunsOutput defines the output for the conviction_runs tool.
type RunsOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"Recorded runs, newest first"`
	Count int           `json:"count" jsonschema:"Number of runs returned"`
}

// RunListItem provides a list view of a recorded run.
type RunListItem struct {
	ID         string     `json:"id"`
	Seed       uint64     `json:"seed"`
	Steps      int        `json:"steps"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StepsInput defines the input for the conviction_steps tool.
type StepsInput struct {
	RunID string `json:"run_id" jsonschema:"Run to read"`
	From  int    `json:"from,omitempty" jsonschema:"First step to return (default 0)"`
	To    int    `json:"to,omitempty" jsonschema:"Last step to return (default: last recorded)"`
}

// StepsOutput defines the output for the conviction_steps tool.
type StepsOutput struct {
	RunID string              `json:"run_id"`
	Steps []pipeline.Snapshot `json:"steps" jsonschema:"Per-step state summaries"`
	Count int                 `json:"count"`
}

// NetworkInput defines the input for the conviction_network tool.
type NetworkInput struct {
	RunID       string  `json:"run_id" jsonschema:"Run to render"`
	Format      string  `json:"format,omitempty" jsonschema:"Output format: 'dot', 'json' (default) or 'html'"`
	MinAffinity float64 `json:"min_affinity,omitempty" jsonschema:"Hide unstaked support edges below this affinity"`
}

// NetworkOutput defines the output for the conviction_network tool.
type NetworkOutput struct {
	Format    string      `json:"format"`
	Step      int         `json:"step" jsonschema:"Step the network was saved at"`
	Graph     interface{} `json:"graph" jsonschema:"Rendered network"`
	NodeCount int         `json:"node_count"`
	EdgeCount int         `json:"edge_count"`
}
