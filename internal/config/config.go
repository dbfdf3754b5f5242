// Package config handles configuration loading and management for ForgeGuard.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for ForgeGuard.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Models    ModelsConfig    `mapstructure:"models"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Build     BuildConfig     `mapstructure:"build"`
	Store     StoreConfig     `mapstructure:"store"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	// APIKey is the primary key for the rate-limit pool.
	APIKey string `mapstructure:"api_key"`
	// Keys lists additional API keys joining the pool.
	Keys []string `mapstructure:"keys"`
	// UseBedrock routes calls through AWS Bedrock instead of the direct API.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// InputTPM is the per-key input tokens-per-minute budget.
	InputTPM int64 `mapstructure:"input_tpm"`
	// OutputTPM is the per-key output tokens-per-minute budget.
	OutputTPM int64 `mapstructure:"output_tpm"`
}

// ModelsConfig holds the default model and per-role overrides.
type ModelsConfig struct {
	Default string `mapstructure:"default"`
	Scout   string `mapstructure:"scout"`
	Coder   string `mapstructure:"coder"`
	Auditor string `mapstructure:"auditor"`
	Fixer   string `mapstructure:"fixer"`
	Planner string `mapstructure:"planner"`
}

// ForRole returns the model for a role, falling back to the default.
func (m *ModelsConfig) ForRole(role string) string {
	var model string
	switch role {
	case "scout":
		model = m.Scout
	case "coder":
		model = m.Coder
	case "auditor":
		model = m.Auditor
	case "fixer":
		model = m.Fixer
	case "planner":
		model = m.Planner
	}
	if model == "" {
		return m.Default
	}
	return model
}

// BudgetConfig holds spend controls.
type BudgetConfig struct {
	// SpendCapDollars is the hard per-build spend ceiling in USD.
	SpendCapDollars float64 `mapstructure:"spend_cap_dollars"`
	// WarnFraction is the cap fraction that triggers the one-time warning.
	WarnFraction float64 `mapstructure:"warn_fraction"`
	// TickerInterval is how often cost_ticker events are emitted.
	TickerInterval time.Duration `mapstructure:"ticker_interval"`
}

// BuildConfig holds conductor and tier settings.
type BuildConfig struct {
	// WorkDir is the default project working directory.
	WorkDir string `mapstructure:"work_dir"`
	// PauseThreshold is the consecutive audit failures that pause a build.
	PauseThreshold int `mapstructure:"pause_threshold"`
	// TierConcurrency caps concurrent file pipelines per tier.
	TierConcurrency int `mapstructure:"tier_concurrency"`
	// HandoffTimeout bounds one sub-agent handoff.
	HandoffTimeout time.Duration `mapstructure:"handoff_timeout"`
	// ClarificationLimit is the per-build cap on clarification questions.
	ClarificationLimit int `mapstructure:"clarification_limit"`
	// ClarificationTimeout is how long an unanswered question waits before
	// the sentinel answer is returned.
	ClarificationTimeout time.Duration `mapstructure:"clarification_timeout"`
	// TrivialFileChars is the size under which generated files skip audit.
	TrivialFileChars int `mapstructure:"trivial_file_chars"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// DatabasePath is the SQLite database file for the build store.
	DatabasePath string `mapstructure:"database_path"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	// LogFile receives verbose per-build logs when set.
	LogFile string `mapstructure:"log_file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, FORGEGUARD_*)
// 2. Project config (.forgeguard.yaml in current directory or parent)
// 3. User config (~/.config/forgeguard/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("")

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_bedrock", "FORGEGUARD_USE_BEDROCK")
	v.BindEnv("budget.spend_cap_dollars", "FORGEGUARD_SPEND_CAP")
	v.BindEnv("store.database_path", "FORGEGUARD_DB_PATH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in keys
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	for i, key := range cfg.Anthropic.Keys {
		cfg.Anthropic.Keys[i] = os.ExpandEnv(key)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.input_tpm", cfg.Anthropic.InputTPM)
	v.Set("anthropic.output_tpm", cfg.Anthropic.OutputTPM)
	v.Set("models.default", cfg.Models.Default)
	v.Set("budget.spend_cap_dollars", cfg.Budget.SpendCapDollars)
	v.Set("budget.warn_fraction", cfg.Budget.WarnFraction)
	v.Set("budget.ticker_interval", cfg.Budget.TickerInterval.String())
	v.Set("build.pause_threshold", cfg.Build.PauseThreshold)
	v.Set("build.tier_concurrency", cfg.Build.TierConcurrency)
	v.Set("build.handoff_timeout", cfg.Build.HandoffTimeout.String())
	v.Set("store.database_path", cfg.Store.DatabasePath)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// PoolKeys returns every configured API key, primary first, deduplicated.
func (c *Config) PoolKeys() []string {
	var keys []string
	seen := make(map[string]bool)
	if c.Anthropic.APIKey != "" {
		keys = append(keys, c.Anthropic.APIKey)
		seen[c.Anthropic.APIKey] = true
	}
	for _, k := range c.Anthropic.Keys {
		if k != "" && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	return keys
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.input_tpm", 80000)
	v.SetDefault("anthropic.output_tpm", 32000)

	v.SetDefault("models.default", "claude-sonnet-4-20250514")

	v.SetDefault("budget.spend_cap_dollars", 25.0)
	v.SetDefault("budget.warn_fraction", 0.8)
	v.SetDefault("budget.ticker_interval", "30s")

	v.SetDefault("build.pause_threshold", 3)
	v.SetDefault("build.tier_concurrency", 3)
	v.SetDefault("build.handoff_timeout", "10m")
	v.SetDefault("build.clarification_limit", 10)
	v.SetDefault("build.clarification_timeout", "10m")
	v.SetDefault("build.trivial_file_chars", 50)

	v.SetDefault("store.database_path", defaultDatabasePath())
}

func defaultDatabasePath() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "forgeguard", "forgeguard.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".forgeguard", "forgeguard.db")
	}
	return filepath.Join(home, ".local", "share", "forgeguard", "forgeguard.db")
}

// getUserConfigDir returns the XDG config directory for ForgeGuard.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "forgeguard")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "forgeguard")
	}
	return filepath.Join(home, ".config", "forgeguard")
}

// findProjectConfig searches for .forgeguard.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".forgeguard.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			InputTPM:  80000,
			OutputTPM: 32000,
		},
		Models: ModelsConfig{
			Default: "claude-sonnet-4-20250514",
		},
		Budget: BudgetConfig{
			SpendCapDollars: 25.0,
			WarnFraction:    0.8,
			TickerInterval:  30 * time.Second,
		},
		Build: BuildConfig{
			PauseThreshold:       3,
			TierConcurrency:      3,
			HandoffTimeout:       10 * time.Minute,
			ClarificationLimit:   10,
			ClarificationTimeout: 10 * time.Minute,
			TrivialFileChars:     50,
		},
		Store: StoreConfig{
			DatabasePath: defaultDatabasePath(),
		},
	}
}
