package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/conviction/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage conviction configuration",
		Long: `View and modify simulation parameters.

Configuration is stored in ~/.conviction/config.yaml.

Examples:
  conviction config list                         # Show all settings
  conviction config get conviction.alpha         # Get a specific setting
  conviction config set conviction.alpha 0.9     # Set a setting
  conviction config set simulation.seed 42`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			value := args[1]

			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				if cfg, err = config.LoadFromFile(path); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// configPath is the file 'config set' writes: --config when given,
// ~/.conviction/config.yaml otherwise.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// floatKeys maps dot-notation keys to float settings.
func floatKeys(cfg *config.Config) map[string]*float64 {
	return map[string]*float64{
		"conviction.alpha":               &cfg.Conviction.Alpha,
		"conviction.beta":                &cfg.Conviction.Beta,
		"conviction.rho":                 &cfg.Conviction.Rho,
		"conviction.min_support":         &cfg.Conviction.MinSupport,
		"sentiment.decay":                &cfg.Sentiment.Decay,
		"sentiment.sensitivity":          &cfg.Sentiment.Sensitivity,
		"sentiment.initial":              &cfg.Sentiment.Initial,
		"lifecycle.base_completion_rate": &cfg.Lifecycle.BaseCompletionRate,
		"lifecycle.base_failure_rate":    &cfg.Lifecycle.BaseFailureRate,
		"arrival.proposal_scale_factor":  &cfg.Arrival.ProposalScaleFactor,
		"arrival.conflict_rate":          &cfg.Arrival.ConflictRate,
		"bootstrap.holdings":             &cfg.Bootstrap.Holdings,
		"bootstrap.conflict_rate":        &cfg.Bootstrap.ConflictRate,
		"bootstrap.influence_rate":       &cfg.Bootstrap.InfluenceRate,
		"commons.hatch_raise":            &cfg.Commons.HatchRaise,
		"commons.token_supply":           &cfg.Commons.TokenSupply,
		"commons.hatch_tribute":          &cfg.Commons.HatchTribute,
		"commons.kappa":                  &cfg.Commons.Kappa,
	}
}

// intKeys maps dot-notation keys to integer settings.
func intKeys(cfg *config.Config) map[string]*int {
	return map[string]*int{
		"simulation.steps":                 &cfg.Simulation.Steps,
		"conviction.min_proposal_age_days": &cfg.Conviction.MinProposalAgeDays,
		"bootstrap.participants":           &cfg.Bootstrap.Participants,
		"bootstrap.proposals":              &cfg.Bootstrap.Proposals,
		"bootstrap.vesting_cliff_days":     &cfg.Bootstrap.VestingCliffDays,
		"bootstrap.vesting_half_life_days": &cfg.Bootstrap.VestingHalfLifeDays,
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (interface{}, bool) {
	if p, ok := floatKeys(cfg)[key]; ok {
		return *p, true
	}
	if p, ok := intKeys(cfg)[key]; ok {
		return *p, true
	}
	switch key {
	case "simulation.seed":
		if cfg.Simulation.Seed == nil {
			return "(not set)", true
		}
		return *cfg.Simulation.Seed, true
	case "sentiment.decay_terminal_conflicts":
		return cfg.Sentiment.DecayTerminalConflicts, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "store.path":
		return valueOrDefault(cfg.Store.Path, "(default)"), true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key. The result
// must still pass Validate.
func setConfigValue(cfg *config.Config, key, value string) error {
	if p, ok := floatKeys(cfg)[key]; ok {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, value)
		}
		*p = f
	} else if p, ok := intKeys(cfg)[key]; ok {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		*p = n
	} else {
		switch key {
		case "simulation.seed":
			seed, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seed: %s", value)
			}
			cfg.Simulation.Seed = &seed
		case "sentiment.decay_terminal_conflicts":
			cfg.Sentiment.DecayTerminalConflicts = value == "true" || value == "1"
		case "logging.level":
			cfg.Logging.Level = value
		case "store.path":
			cfg.Store.Path = value
		default:
			return fmt.Errorf("unknown configuration key: %s", key)
		}
	}

	// The seed is the one setting allowed to stay unset on disk.
	check := *cfg
	if check.Simulation.Seed == nil {
		var zero uint64
		check.Simulation.Seed = &zero
	}
	if err := check.Validate(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
