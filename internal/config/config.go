// Package config loads caaasearch configuration from a YAML file with
// environment variable overrides. Every field has a workable default, so a
// missing config file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all caaasearch configuration.
type Config struct {
	// LLM provider for clarification, planning, scoring and synthesis.
	LLM LLMConfig `yaml:"llm"`

	// Search store (Postgres or SQLite by DSN).
	Store StoreConfig `yaml:"store"`

	// Headless browser session.
	Browser BrowserConfig `yaml:"browser"`

	// Archive retrieval behavior.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Worker process management.
	Worker WorkerConfig `yaml:"worker"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// WorkerConfig controls how search workers are spawned.
type WorkerConfig struct {
	// Max simultaneous worker processes for run-pending.
	MaxConcurrent int `yaml:"max_concurrent" validate:"min=1"`

	// Hard wall-clock limit per worker run.
	Timeout string `yaml:"timeout"`
}

// LoggingConfig configures the category file loggers.
type LoggingConfig struct {
	// Directory for log files; empty disables file logging.
	Dir   string `yaml:"dir"`
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:           "openai",
			Model:              "gpt-4o-mini",
			BaseURL:            "https://api.openai.com/v1",
			Timeout:            "120s",
			MinRequestInterval: "600ms",
			MaxRetries:         3,
		},

		Store: StoreConfig{
			DSN:             "data/caaasearch.db",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: "30m",
		},

		Browser: BrowserConfig{
			Headless:   true,
			CookieFile: "auth.json",
			NavTimeout: "60s",
		},

		Retrieval: RetrievalConfig{
			SearchURL:       DefaultSearchURL,
			MaxMessages:     100,
			MaxPages:        10,
			ResultsTimeout:  "30s",
			MessageTimeout:  "10s",
			PolitenessDelay: "2s",
		},

		Worker: WorkerConfig{
			MaxConcurrent: 2,
			Timeout:       "30m",
		},

		Logging: LoggingConfig{
			Dir:   "logs",
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment variables are applied on top either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides. Provider keys
// are checked in priority order so the last match wins.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("CAAASEARCH_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("CAAASEARCH_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("CAAASEARCH_LLM_URL"); url != "" {
		c.LLM.BaseURL = url
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Store.DSN = dsn
	}
	if dsn := os.Getenv("CAAASEARCH_DB"); dsn != "" {
		c.Store.DSN = dsn
	}

	if url := os.Getenv("CAAASEARCH_BROWSER_URL"); url != "" {
		c.Browser.ControlURL = url
	}
	if path := os.Getenv("CAAASEARCH_COOKIES"); path != "" {
		c.Browser.CookieFile = path
	}

	if dir := os.Getenv("CAAASEARCH_LOG_DIR"); dir != "" {
		c.Logging.Dir = dir
	}
	if level := os.Getenv("CAAASEARCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

var validate = validator.New()

// ValidProviders lists the supported LLM providers.
var ValidProviders = []string{"openai", "anthropic", "openrouter"}

// Validate checks the configuration before a pipeline run.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY, ANTHROPIC_API_KEY, or CAAASEARCH_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}
