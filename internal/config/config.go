// Package config loads ontoforge workspace configuration from
// .onto/config.yaml, with environment variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ontoforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Model API configuration
	LLM LLMConfig `yaml:"llm"`

	// Compiled graph configuration
	Graph GraphConfig `yaml:"graph"`

	// Agent loop configuration
	Session SessionConfig `yaml:"session"`

	// Run archive configuration
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// GraphConfig configures the Mangle-backed ontology graph.
type GraphConfig struct {
	FactLimit    int    `yaml:"fact_limit"`
	QueryTimeout string `yaml:"query_timeout"`
}

// SessionConfig configures the bounded agent loops.
type SessionConfig struct {
	// BuildMaxTurns bounds one build loop over a single source document.
	BuildMaxTurns int `yaml:"build_max_turns"`

	// RetrievalMaxTurns bounds one retrieval loop over a single question.
	RetrievalMaxTurns int `yaml:"retrieval_max_turns"`

	// TransportRetries is how many consecutive transport failures are
	// retried before a run fails. Retries are per request and do not
	// consume turns.
	TransportRetries int `yaml:"transport_retries"`

	// RetryBackoff is the base delay between transport retries.
	RetryBackoff string `yaml:"retry_backoff"`
}

// StoreConfig configures the run archive and artifact locations.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	OutcomesDir  string `yaml:"outcomes_dir"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ontoforge",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Graph: GraphConfig{
			FactLimit:    1000000,
			QueryTimeout: "30s",
		},

		Session: SessionConfig{
			BuildMaxTurns:     80,
			RetrievalMaxTurns: 20,
			TransportRetries:  3,
			RetryBackoff:      "15s",
		},

		Store: StoreConfig{
			DatabasePath: filepath.Join(".onto", "archive.db"),
			OutcomesDir:  filepath.Join(".onto", "outcomes"),
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the config path inside a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".onto", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
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

// Save saves configuration to a YAML file.
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// ONTOFORGE_API_KEY always wins; provider-specific keys fill in when the
	// config has no key of its own.
	if key := os.Getenv("ONTOFORGE_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if c.LLM.APIKey == "" {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			c.LLM.APIKey = key
			if c.LLM.Provider != "anthropic" {
				c.LLM.Provider = "anthropic"
				c.LLM.Model = "claude-sonnet-4-5"
				c.LLM.BaseURL = "https://api.anthropic.com/v1"
			}
		}
	}
	if c.LLM.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
			c.LLM.Provider = "openai"
		}
	}

	if model := os.Getenv("ONTOFORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("ONTOFORGE_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if path := os.Getenv("ONTOFORGE_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// GetLLMTimeout returns the model request timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetQueryTimeout returns the graph query timeout as a duration.
func (c *Config) GetQueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Graph.QueryTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRetryBackoff returns the transport retry backoff as a duration.
func (c *Config) GetRetryBackoff() time.Duration {
	d, err := time.ParseDuration(c.Session.RetryBackoff)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// ValidProviders lists all supported model providers.
var ValidProviders = []string{"anthropic", "openai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("model API key not configured (set ONTOFORGE_API_KEY, ANTHROPIC_API_KEY, or OPENAI_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid model provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Session.BuildMaxTurns <= 0 {
		return fmt.Errorf("session.build_max_turns must be positive, got %d", c.Session.BuildMaxTurns)
	}
	if c.Session.RetrievalMaxTurns <= 0 {
		return fmt.Errorf("session.retrieval_max_turns must be positive, got %d", c.Session.RetrievalMaxTurns)
	}

	return nil
}
