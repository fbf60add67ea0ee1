package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func seeded() *Config {
	config := Default()
	seed := uint64(42)
	config.Simulation.Seed = &seed
	return config
}

func TestDefault(t *testing.T) {
	config := Default()

	if config.Simulation.Seed != nil {
		t.Errorf("expected no default seed, got %d", *config.Simulation.Seed)
	}
	if config.Simulation.Steps != 100 {
		t.Errorf("expected Steps 100, got %d", config.Simulation.Steps)
	}
	if config.Conviction.Alpha != 0.5 {
		t.Errorf("expected Alpha 0.5, got %f", config.Conviction.Alpha)
	}
	if config.Conviction.MinProposalAgeDays != 2 {
		t.Errorf("expected MinProposalAgeDays 2, got %d", config.Conviction.MinProposalAgeDays)
	}
	if config.Sentiment.Sensitivity != 0.75 {
		t.Errorf("expected Sensitivity 0.75, got %f", config.Sentiment.Sensitivity)
	}
	if !config.Sentiment.DecayTerminalConflicts {
		t.Error("expected DecayTerminalConflicts to be true by default")
	}
	if config.Lifecycle.BaseCompletionRate != 100 || config.Lifecycle.BaseFailureRate != 200 {
		t.Errorf("unexpected lifecycle rates %+v", config.Lifecycle)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
simulation:
  seed: 7
  steps: 30

conviction:
  alpha: 0.9
  min_proposal_age_days: 5

sentiment:
  decay_terminal_conflicts: false

bootstrap:
  participants: 10
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.SeedValue() != 7 {
		t.Errorf("expected seed 7, got %d", config.SeedValue())
	}
	if config.Simulation.Steps != 30 {
		t.Errorf("expected Steps 30, got %d", config.Simulation.Steps)
	}
	if config.Conviction.Alpha != 0.9 {
		t.Errorf("expected Alpha 0.9, got %f", config.Conviction.Alpha)
	}
	if config.Conviction.MinProposalAgeDays != 5 {
		t.Errorf("expected MinProposalAgeDays 5, got %d", config.Conviction.MinProposalAgeDays)
	}
	if config.Sentiment.DecayTerminalConflicts {
		t.Error("expected DecayTerminalConflicts to be false")
	}
	if config.Bootstrap.Participants != 10 {
		t.Errorf("expected 10 participants, got %d", config.Bootstrap.Participants)
	}
	// Unset fields keep their defaults.
	if config.Conviction.Beta != 0.2 {
		t.Errorf("expected default Beta 0.2, got %f", config.Conviction.Beta)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
store:
  path: ${TEST_STORE_DIR}/history.db
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("TEST_STORE_DIR", "/tmp/runs")

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	path, err := config.StorePath()
	if err != nil {
		t.Fatalf("StorePath failed: %v", err)
	}
	if path != "/tmp/runs/history.db" {
		t.Errorf("expected expanded store path, got '%s'", path)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := seeded()
	config.Arrival.ConflictRate = 0.1

	if err := config.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if loaded.SeedValue() != 42 {
		t.Errorf("expected seed 42, got %d", loaded.SeedValue())
	}
	if loaded.Arrival.ConflictRate != 0.1 {
		t.Errorf("expected ConflictRate 0.1, got %f", loaded.Arrival.ConflictRate)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONVICTION_SEED", "99")
	t.Setenv("CONVICTION_STEPS", "12")
	t.Setenv("CONVICTION_ALPHA", "0.8")
	t.Setenv("CONVICTION_LOG_LEVEL", "debug")
	t.Setenv("CONVICTION_STORE_PATH", "/tmp/h.db")

	config := Default()
	if err := applyEnvOverrides(config); err != nil {
		t.Fatalf("applyEnvOverrides failed: %v", err)
	}

	if config.SeedValue() != 99 {
		t.Errorf("expected seed 99, got %d", config.SeedValue())
	}
	if config.Simulation.Steps != 12 {
		t.Errorf("expected Steps 12, got %d", config.Simulation.Steps)
	}
	if config.Conviction.Alpha != 0.8 {
		t.Errorf("expected Alpha 0.8, got %f", config.Conviction.Alpha)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Logging.Level 'debug', got '%s'", config.Logging.Level)
	}
	if config.Store.Path != "/tmp/h.db" {
		t.Errorf("expected store path override, got '%s'", config.Store.Path)
	}
}

func TestEnvOverrides_BadSeed(t *testing.T) {
	t.Setenv("CONVICTION_SEED", "not-a-number")

	if err := applyEnvOverrides(Default()); err == nil {
		t.Error("expected error for malformed seed")
	}
}

func TestLoad_UsesHomeConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CONVICTION_SEED", "")
	dir := filepath.Join(home, ".conviction")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("simulation:\n  seed: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.SeedValue() != 3 {
		t.Errorf("expected seed 3 from home config, got %d", config.SeedValue())
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := seeded().Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_MissingSeed(t *testing.T) {
	err := Default().Validate()
	if !errors.Is(err, ErrMissingSeed) {
		t.Errorf("expected ErrMissingSeed, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"alpha zero", func(c *Config) { c.Conviction.Alpha = 0 }},
		{"alpha one", func(c *Config) { c.Conviction.Alpha = 1 }},
		{"beta zero", func(c *Config) { c.Conviction.Beta = 0 }},
		{"rho negative", func(c *Config) { c.Conviction.Rho = -1 }},
		{"negative steps", func(c *Config) { c.Simulation.Steps = -1 }},
		{"sensitivity above one", func(c *Config) { c.Sentiment.Sensitivity = 1.5 }},
		{"zero completion rate", func(c *Config) { c.Lifecycle.BaseCompletionRate = 0 }},
		{"conflict rate above one", func(c *Config) { c.Arrival.ConflictRate = 2 }},
		{"no participants", func(c *Config) { c.Bootstrap.Participants = 0 }},
		{"tribute one", func(c *Config) { c.Commons.HatchTribute = 1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := seeded()
			tt.edit(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_ValidLogLevels(t *testing.T) {
	validLevels := []string{"", "info", "debug", "trace"}

	for _, level := range validLevels {
		t.Run(level, func(t *testing.T) {
			config := seeded()
			config.Logging.Level = level
			if err := config.Validate(); err != nil {
				t.Errorf("expected log level '%s' to be valid, got error: %v", level, err)
			}
		})
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
conviction:
  alpha: [invalid yaml
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}
