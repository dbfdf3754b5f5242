package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgeguard/forgeguard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify ForgeGuard configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/forgeguard/config.yaml
Project-specific overrides can be placed in .forgeguard.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s (source: %s)\n",
		config.MaskAPIKey(cfg.Anthropic.APIKey), config.GetAPIKeySource(cfg))
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("anthropic.input_tpm: %d\n", cfg.Anthropic.InputTPM)
	fmt.Printf("anthropic.output_tpm: %d\n", cfg.Anthropic.OutputTPM)
	fmt.Printf("models.default: %s\n", cfg.Models.Default)
	fmt.Printf("budget.spend_cap_dollars: %.2f\n", cfg.Budget.SpendCapDollars)
	fmt.Printf("budget.warn_fraction: %.2f\n", cfg.Budget.WarnFraction)
	fmt.Printf("budget.ticker_interval: %s\n", cfg.Budget.TickerInterval)
	fmt.Printf("build.pause_threshold: %d\n", cfg.Build.PauseThreshold)
	fmt.Printf("build.tier_concurrency: %d\n", cfg.Build.TierConcurrency)
	fmt.Printf("build.handoff_timeout: %s\n", cfg.Build.HandoffTimeout)
	fmt.Printf("build.clarification_limit: %d\n", cfg.Build.ClarificationLimit)
	fmt.Printf("build.clarification_timeout: %s\n", cfg.Build.ClarificationTimeout)
	fmt.Printf("build.trivial_file_chars: %d\n", cfg.Build.TrivialFileChars)
	fmt.Printf("store.database_path: %s\n", cfg.Store.DatabasePath)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.input_tpm":
		return strconv.FormatInt(cfg.Anthropic.InputTPM, 10), nil
	case "anthropic.output_tpm":
		return strconv.FormatInt(cfg.Anthropic.OutputTPM, 10), nil
	case "models.default":
		return cfg.Models.Default, nil
	case "budget.spend_cap_dollars":
		return strconv.FormatFloat(cfg.Budget.SpendCapDollars, 'f', 2, 64), nil
	case "budget.warn_fraction":
		return strconv.FormatFloat(cfg.Budget.WarnFraction, 'f', 2, 64), nil
	case "budget.ticker_interval":
		return cfg.Budget.TickerInterval.String(), nil
	case "build.pause_threshold":
		return strconv.Itoa(cfg.Build.PauseThreshold), nil
	case "build.tier_concurrency":
		return strconv.Itoa(cfg.Build.TierConcurrency), nil
	case "build.handoff_timeout":
		return cfg.Build.HandoffTimeout.String(), nil
	case "build.clarification_limit":
		return strconv.Itoa(cfg.Build.ClarificationLimit), nil
	case "build.clarification_timeout":
		return cfg.Build.ClarificationTimeout.String(), nil
	case "build.trivial_file_chars":
		return strconv.Itoa(cfg.Build.TrivialFileChars), nil
	case "store.database_path":
		return cfg.Store.DatabasePath, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		// Env references like ${ANTHROPIC_API_KEY} are expanded at load time.
		if !strings.HasPrefix(value, "${") {
			if err := config.ValidateAPIKey(value); err != nil {
				return err
			}
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.input_tpm":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Anthropic.InputTPM = n
	case "anthropic.output_tpm":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Anthropic.OutputTPM = n
	case "models.default":
		cfg.Models.Default = value
	case "budget.spend_cap_dollars":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid dollar amount: %s", value)
		}
		cfg.Budget.SpendCapDollars = f
	case "budget.warn_fraction":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 || f > 1 {
			return fmt.Errorf("warn fraction must be in (0, 1]: %s", value)
		}
		cfg.Budget.WarnFraction = f
	case "budget.ticker_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Budget.TickerInterval = d
	case "build.pause_threshold":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("pause threshold must be a positive integer: %s", value)
		}
		cfg.Build.PauseThreshold = n
	case "build.tier_concurrency":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("tier concurrency must be a positive integer: %s", value)
		}
		cfg.Build.TierConcurrency = n
	case "build.handoff_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Build.HandoffTimeout = d
	case "build.clarification_limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Build.ClarificationLimit = n
	case "build.clarification_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Build.ClarificationTimeout = d
	case "build.trivial_file_chars":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Build.TrivialFileChars = n
	case "store.database_path":
		cfg.Store.DatabasePath = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
