// Package config provides unified configuration loading for conviction.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingSeed is returned by Validate when no seed is configured.
var ErrMissingSeed = errors.New("simulation.seed is required")

// Config contains all conviction configuration settings.
type Config struct {
	// Simulation controls the run itself.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Conviction contains the accumulation and threshold parameters.
	Conviction ConvictionConfig `json:"conviction" yaml:"conviction"`

	// Sentiment contains the feedback parameters.
	Sentiment SentimentConfig `json:"sentiment" yaml:"sentiment"`

	// Lifecycle contains the proposal outcome rates.
	Lifecycle LifecycleConfig `json:"lifecycle" yaml:"lifecycle"`

	// Arrival contains the parameters of new proposals.
	Arrival ArrivalConfig `json:"arrival" yaml:"arrival"`

	// Bootstrap describes the initial network.
	Bootstrap BootstrapConfig `json:"bootstrap" yaml:"bootstrap"`

	// Commons describes the hatch and bonding curve.
	Commons CommonsConfig `json:"commons" yaml:"commons"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store configures where run history is kept.
	Store StoreConfig `json:"store" yaml:"store"`
}

// SimulationConfig controls a run.
type SimulationConfig struct {
	// Seed makes a run reproducible. It must be set.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Steps is the number of simulated days.
	Steps int `json:"steps" yaml:"steps"`
}

// ConvictionConfig configures conviction accumulation and acceptance.
type ConvictionConfig struct {
	// Alpha is the conviction decay factor, in (0, 1).
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// Beta is the largest share of the funding pool one proposal may request.
	Beta float64 `json:"beta" yaml:"beta"`

	// Rho scales the trigger threshold.
	Rho float64 `json:"rho" yaml:"rho"`

	// MinSupport is the smallest total stake a candidate needs to survive.
	MinSupport float64 `json:"min_support" yaml:"min_support"`

	// MinProposalAgeDays is the age a candidate must exceed to be accepted.
	MinProposalAgeDays int `json:"min_proposal_age_days" yaml:"min_proposal_age_days"`
}

// SentimentConfig configures sentiment feedback.
type SentimentConfig struct {
	// Decay is applied to commons sentiment with each outcome update.
	Decay float64 `json:"decay" yaml:"decay"`

	// Sensitivity scales competing affinity in the acceptance force and sets
	// the staking cutoff and engagement baseline.
	Sensitivity float64 `json:"sensitivity" yaml:"sensitivity"`

	// Initial is the commons sentiment at step 0.
	Initial float64 `json:"initial" yaml:"initial"`

	// DecayTerminalConflicts applies conflict affinity decay to proposals
	// that are already completed or failed.
	DecayTerminalConflicts bool `json:"decay_terminal_conflicts" yaml:"decay_terminal_conflicts"`
}

// LifecycleConfig configures the outcome draw.
type LifecycleConfig struct {
	// BaseCompletionRate: active proposals complete with p = 1/(rate + ln(funds)).
	BaseCompletionRate float64 `json:"base_completion_rate" yaml:"base_completion_rate"`

	// BaseFailureRate: otherwise they fail with p = 1/(rate + ln(funds)).
	BaseFailureRate float64 `json:"base_failure_rate" yaml:"base_failure_rate"`
}

// ArrivalConfig configures new proposals.
type ArrivalConfig struct {
	// ProposalScaleFactor scales requested funds relative to the pool.
	ProposalScaleFactor float64 `json:"proposal_scale_factor" yaml:"proposal_scale_factor"`

	// ConflictRate is the chance a new proposal conflicts with each open one.
	ConflictRate float64 `json:"conflict_rate" yaml:"conflict_rate"`
}

// BootstrapConfig describes the initial network.
type BootstrapConfig struct {
	Participants int `json:"participants" yaml:"participants"`
	Proposals    int `json:"proposals" yaml:"proposals"`

	// Holdings is each hatcher's nonvesting token balance.
	Holdings float64 `json:"holdings" yaml:"holdings"`

	VestingCliffDays    int `json:"vesting_cliff_days" yaml:"vesting_cliff_days"`
	VestingHalfLifeDays int `json:"vesting_half_life_days" yaml:"vesting_half_life_days"`

	// ConflictRate is the chance two initial proposals conflict.
	ConflictRate float64 `json:"conflict_rate" yaml:"conflict_rate"`

	// InfluenceRate is the chance one hatcher influences another.
	InfluenceRate float64 `json:"influence_rate" yaml:"influence_rate"`
}

// CommonsConfig describes the hatch and the bonding curve.
type CommonsConfig struct {
	HatchRaise   float64 `json:"hatch_raise" yaml:"hatch_raise"`
	TokenSupply  float64 `json:"token_supply" yaml:"token_supply"`
	HatchTribute float64 `json:"hatch_tribute" yaml:"hatch_tribute"`
	Kappa        float64 `json:"kappa" yaml:"kappa"`
}

// LoggingConfig configures conviction's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to decisions.jsonl next to the store.
	Level string `json:"level" yaml:"level"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	// Path is the SQLite database file. Supports ${VAR} syntax.
	// Empty means ~/.conviction/history.db.
	Path string `json:"path" yaml:"path"`
}

// Default returns a Config with sensible defaults. The seed is left unset.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Steps: 100,
		},
		Conviction: ConvictionConfig{
			Alpha:              0.5,
			Beta:               0.2,
			Rho:                0.0025,
			MinSupport:         1,
			MinProposalAgeDays: 2,
		},
		Sentiment: SentimentConfig{
			Decay:                  0.01,
			Sensitivity:            0.75,
			Initial:                0.5,
			DecayTerminalConflicts: true,
		},
		Lifecycle: LifecycleConfig{
			BaseCompletionRate: 100,
			BaseFailureRate:    200,
		},
		Arrival: ArrivalConfig{
			ProposalScaleFactor: 1,
			ConflictRate:        0.25,
		},
		Bootstrap: BootstrapConfig{
			Participants:        4,
			Proposals:           1,
			Holdings:            250,
			VestingCliffDays:    10,
			VestingHalfLifeDays: 30,
			ConflictRate:        0.25,
			InfluenceRate:       0.5,
		},
		Commons: CommonsConfig{
			HatchRaise:   10000,
			TokenSupply:  1000,
			HatchTribute: 0.2,
			Kappa:        2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.conviction.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".conviction"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.conviction/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	// Try to load from default config file
	if dir, err := Dir(); err == nil {
		configPath := filepath.Join(dir, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)

	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// SeedValue returns the configured seed. Call Validate first.
func (c *Config) SeedValue() uint64 {
	if c.Simulation.Seed == nil {
		return 0
	}
	return *c.Simulation.Seed
}

// StorePath returns the history database path, defaulting under ~/.conviction.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Simulation.Seed == nil {
		return ErrMissingSeed
	}
	if c.Simulation.Steps < 0 {
		return fmt.Errorf("steps must be non-negative, got %d", c.Simulation.Steps)
	}

	cv := c.Conviction
	if cv.Alpha <= 0 || cv.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0, 1), got %f", cv.Alpha)
	}
	if cv.Beta <= 0 || cv.Beta > 1 {
		return fmt.Errorf("beta must be in (0, 1], got %f", cv.Beta)
	}
	if cv.Rho <= 0 {
		return fmt.Errorf("rho must be positive, got %f", cv.Rho)
	}
	if cv.MinSupport < 0 {
		return fmt.Errorf("min_support must be non-negative, got %f", cv.MinSupport)
	}
	if cv.MinProposalAgeDays < 0 {
		return fmt.Errorf("min_proposal_age_days must be non-negative, got %d", cv.MinProposalAgeDays)
	}

	if c.Sentiment.Decay < 0 || c.Sentiment.Decay > 1 {
		return fmt.Errorf("sentiment decay must be between 0 and 1, got %f", c.Sentiment.Decay)
	}
	if c.Sentiment.Sensitivity < 0 || c.Sentiment.Sensitivity > 1 {
		return fmt.Errorf("sentiment sensitivity must be between 0 and 1, got %f", c.Sentiment.Sensitivity)
	}
	if c.Sentiment.Initial < 0 || c.Sentiment.Initial > 1 {
		return fmt.Errorf("initial sentiment must be between 0 and 1, got %f", c.Sentiment.Initial)
	}

	if c.Lifecycle.BaseCompletionRate <= 0 || c.Lifecycle.BaseFailureRate <= 0 {
		return fmt.Errorf("base completion and failure rates must be positive")
	}

	if c.Arrival.ProposalScaleFactor <= 0 {
		return fmt.Errorf("proposal_scale_factor must be positive, got %f", c.Arrival.ProposalScaleFactor)
	}
	for name, rate := range map[string]float64{
		"arrival.conflict_rate":   c.Arrival.ConflictRate,
		"bootstrap.conflict_rate": c.Bootstrap.ConflictRate,
		"influence_rate":          c.Bootstrap.InfluenceRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, rate)
		}
	}

	b := c.Bootstrap
	if b.Participants <= 0 {
		return fmt.Errorf("bootstrap participants must be positive, got %d", b.Participants)
	}
	if b.Proposals < 0 || b.Holdings < 0 || b.VestingCliffDays < 0 || b.VestingHalfLifeDays < 0 {
		return fmt.Errorf("bootstrap counts, holdings and vesting days must be non-negative")
	}

	cm := c.Commons
	if cm.HatchRaise <= 0 || cm.TokenSupply <= 0 || cm.Kappa <= 0 {
		return fmt.Errorf("hatch_raise, token_supply and kappa must be positive")
	}
	if cm.HatchTribute < 0 || cm.HatchTribute >= 1 {
		return fmt.Errorf("hatch_tribute must be in [0, 1)")
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) error {
	if v := os.Getenv("CONVICTION_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CONVICTION_SEED: %w", err)
		}
		config.Simulation.Seed = &seed
	}

	if v := os.Getenv("CONVICTION_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Steps = n
		}
	}

	if v := os.Getenv("CONVICTION_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Conviction.Alpha = f
		}
	}

	if v := os.Getenv("CONVICTION_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("CONVICTION_STORE_PATH"); v != "" {
		config.Store.Path = expandEnvVars(v)
	}

	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
