package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/conviction/internal/config"
	"github.com/nvandessel/conviction/internal/export"
	"github.com/nvandessel/conviction/internal/pipeline"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.conviction/
// MUST be called for any test that opens a store or writes config
func isolateHome(t *testing.T) string {
	t.Helper()
	tmpHome := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
	t.Setenv("CONVICTION_SEED", "")
	t.Setenv("CONVICTION_STORE_PATH", "")
	return tmpHome
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"version", "run", "runs", "steps", "graph", "export", "config", "mcp-server"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestRunCmd_RequiresSeed(t *testing.T) {
	isolateHome(t)
	_, err := execute(t, "run", "--no-save", "--steps", "3")
	if err == nil {
		t.Fatal("run without seed should fail")
	}
	if !strings.Contains(err.Error(), "--seed") {
		t.Errorf("error = %v, want a hint about --seed", err)
	}
}

func TestRunCmd_Deterministic(t *testing.T) {
	isolateHome(t)

	run := func() runSummary {
		out, err := execute(t, "run", "--seed", "11", "--steps", "20", "--no-save", "--json")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		var s runSummary
		if err := json.Unmarshal([]byte(out), &s); err != nil {
			t.Fatalf("run output is not JSON: %v\n%s", err, out)
		}
		return s
	}

	a, b := run(), run()
	if a.Saved || b.Saved {
		t.Error("--no-save runs reported as saved")
	}
	if a.Steps != 20 {
		t.Errorf("Steps = %d, want 20", a.Steps)
	}
	if a.Final.FundingPool != b.Final.FundingPool || a.Final.Sentiment != b.Final.Sentiment ||
		a.Accepted != b.Accepted || a.Final.Participants != b.Final.Participants {
		t.Errorf("same seed diverged:\n%+v\n%+v", a.Final, b.Final)
	}
}

func TestRunThenInspect(t *testing.T) {
	home := isolateHome(t)
	db := filepath.Join(home, "history.db")

	out, err := execute(t, "run", "--seed", "7", "--steps", "15", "--db", db, "--json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var summary runSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("run output: %v", err)
	}
	if !summary.Saved || summary.RunID == "" {
		t.Fatalf("summary = %+v, want a saved run", summary)
	}

	t.Run("runs", func(t *testing.T) {
		out, err := execute(t, "runs", "--db", db, "--json")
		if err != nil {
			t.Fatalf("runs: %v", err)
		}
		var got struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("runs output: %v", err)
		}
		if got.Count != 1 {
			t.Errorf("count = %d, want 1", got.Count)
		}
	})

	t.Run("runs show", func(t *testing.T) {
		out, err := execute(t, "runs", "show", "--db", db)
		if err != nil {
			t.Fatalf("runs show: %v", err)
		}
		if !strings.Contains(out, summary.RunID) || !strings.Contains(out, "completed") {
			t.Errorf("runs show output missing run id or status:\n%s", out)
		}
	})

	t.Run("steps range", func(t *testing.T) {
		out, err := execute(t, "steps", summary.RunID, "--db", db, "--from", "5", "--to", "7", "--json")
		if err != nil {
			t.Fatalf("steps: %v", err)
		}
		var got struct {
			Steps []pipeline.Snapshot `json:"steps"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("steps output: %v", err)
		}
		if len(got.Steps) != 3 || got.Steps[0].Step != 5 || got.Steps[2].Step != 7 {
			t.Errorf("steps = %+v, want steps 5..7", got.Steps)
		}
	})

	t.Run("graph dot", func(t *testing.T) {
		out, err := execute(t, "graph", "--db", db)
		if err != nil {
			t.Fatalf("graph: %v", err)
		}
		if !strings.HasPrefix(out, "digraph conviction {") {
			t.Errorf("graph output is not DOT:\n%s", out)
		}
	})

	t.Run("graph html", func(t *testing.T) {
		path := filepath.Join(home, "report.html")
		if _, err := execute(t, "graph", "--db", db, "--format", "html", "-o", path, "--no-open"); err != nil {
			t.Fatalf("graph html: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading report: %v", err)
		}
		if !strings.Contains(string(data), summary.RunID) {
			t.Error("report does not mention the run id")
		}
	})

	t.Run("export arrow", func(t *testing.T) {
		path := filepath.Join(home, "history.arrow")
		if _, err := execute(t, "export", "--db", db, "-o", path); err != nil {
			t.Fatalf("export: %v", err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open export: %v", err)
		}
		defer f.Close()

		header, steps, err := export.ReadHistory(f)
		if err != nil {
			t.Fatalf("ReadHistory: %v", err)
		}
		if header.RunID != summary.RunID || header.Seed != 7 {
			t.Errorf("header = %+v", header)
		}
		if len(steps) != 16 {
			t.Errorf("exported %d steps, want 16", len(steps))
		}
	})

	t.Run("export jsonl", func(t *testing.T) {
		out, err := execute(t, "export", "--db", db, "--format", "jsonl")
		if err != nil {
			t.Fatalf("export: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 16 {
			t.Errorf("got %d lines, want 16", len(lines))
		}
	})
}

func TestRunsCmd_Empty(t *testing.T) {
	home := isolateHome(t)
	out, err := execute(t, "runs", "--db", filepath.Join(home, "empty.db"))
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "No runs recorded.") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "graph", "--db", filepath.Join(home, "empty.db")); err == nil {
		t.Error("graph with no runs should fail")
	}
}

func TestConfigSetGet(t *testing.T) {
	home := isolateHome(t)
	path := filepath.Join(home, "scenario.yaml")

	if _, err := execute(t, "config", "set", "conviction.alpha", "0.9", "--config", path); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if _, err := execute(t, "config", "set", "simulation.seed", "99", "--config", path); err != nil {
		t.Fatalf("config set seed: %v", err)
	}

	out, err := execute(t, "config", "get", "conviction.alpha", "--config", path)
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != "conviction.alpha = 0.9" {
		t.Errorf("config get = %q", out)
	}

	out, err = execute(t, "config", "get", "simulation.seed", "--config", path, "--json")
	if err != nil {
		t.Fatalf("config get seed: %v", err)
	}
	if !strings.Contains(out, `"value": 99`) {
		t.Errorf("config get seed = %q", out)
	}

	if _, err := execute(t, "config", "set", "conviction.alpha", "2", "--config", path); err == nil {
		t.Error("alpha outside (0, 1) should be rejected")
	}
	if _, err := execute(t, "config", "set", "no.such.key", "1", "--config", path); err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestSetConfigValue_KeepsSeedUnset(t *testing.T) {
	cfg := config.Default()
	if err := setConfigValue(cfg, "bootstrap.participants", "8"); err != nil {
		t.Fatalf("setConfigValue: %v", err)
	}
	if cfg.Simulation.Seed != nil {
		t.Error("validation must not write a seed")
	}
	if cfg.Bootstrap.Participants != 8 {
		t.Errorf("participants = %d", cfg.Bootstrap.Participants)
	}
}

func TestStepRange(t *testing.T) {
	var steps []pipeline.Snapshot
	for i := 0; i <= 10; i++ {
		steps = append(steps, pipeline.Snapshot{Step: i})
	}

	tests := []struct {
		name      string
		from, to  int
		wantFirst int
		wantLen   int
	}{
		{"all", 0, -1, 0, 11},
		{"tail", 8, -1, 8, 3},
		{"window", 2, 4, 2, 3},
		{"empty", 20, -1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stepRange(steps, tt.from, tt.to)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen > 0 && got[0].Step != tt.wantFirst {
				t.Errorf("first = %d, want %d", got[0].Step, tt.wantFirst)
			}
		})
	}
}
