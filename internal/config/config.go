package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torvik-dev/parley/internal/window"
)

// Config is the full application configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Context  ContextConfig  `yaml:"context"`
	Tools    ToolsConfig    `yaml:"tools"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	MaxRetries  int      `yaml:"max_retries"`
	BaseDelay   Duration `yaml:"base_delay"`
	Exponential bool     `yaml:"exponential_backoff"`
}

// Duration round-trips through YAML as a human-readable string ("1s",
// "500ms") instead of raw nanoseconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

type ContextConfig struct {
	Strategy    string `yaml:"strategy"`
	Preamble    string `yaml:"preamble"`
	TokenBudget int    `yaml:"token_budget"`
	MaxMessages int    `yaml:"max_messages"`
}

type ToolsConfig struct {
	Enabled             bool   `yaml:"enabled"`
	ManifestDir         string `yaml:"manifest_dir"`
	MaxToolCallsPerTurn int    `yaml:"max_tool_calls_per_turn"`
}

type DatabaseConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration the CLI ships with.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    "openrouter",
			Model:       "openai/gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1024,
			MaxRetries:  3,
			BaseDelay:   Duration(time.Second),
			Exponential: true,
		},
		Context: ContextConfig{
			Strategy:    window.StrategyDefault,
			Preamble:    "You are a helpful assistant with access to tools. Use them when they help.",
			TokenBudget: 4096,
			MaxMessages: 50,
		},
		Tools: ToolsConfig{
			Enabled:             true,
			MaxToolCallsPerTurn: 5,
		},
		Database: DatabaseConfig{
			Path:    "parley.db",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path, layered over Default, then applies
// environment overrides. A missing file is not an error: you get the
// defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PARLEY_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("PARLEY_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("PARLEY_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("PARLEY_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PARLEY_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = f
		}
	}
}

// Validate checks the fields a turn cannot run without.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "openrouter", "anthropic", "dummy":
	default:
		return fmt.Errorf("llm.provider must be openrouter, anthropic, or dummy, got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.MaxRetries < 1 {
		return fmt.Errorf("llm.max_retries must be at least 1")
	}
	if !slices.Contains(window.Strategies, c.Context.Strategy) {
		return fmt.Errorf("context.strategy must be one of %v, got %q", window.Strategies, c.Context.Strategy)
	}
	if c.Context.TokenBudget < 1 {
		return fmt.Errorf("context.token_budget must be positive")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when the database is enabled")
	}
	return nil
}

// Write serializes cfg to path, for `parley config init`.
func (c Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
