package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a taskplan project.
type Config struct {
	Version int    `yaml:"version"`
	Server  Server `yaml:"server"`
	Store   Store  `yaml:"store"`
	Log     Log    `yaml:"log"`
	Chat    Chat   `yaml:"chat"`
	NATS    NATS   `yaml:"nats"`
	Ingest  Ingest `yaml:"ingest"`
}

// Server configures the webhook HTTP server.
type Server struct {
	Addr    string `yaml:"addr"`              // Listen address, e.g. ":8080"
	Metrics bool   `yaml:"metrics,omitempty"` // Serve GET /metrics
}

// Store selects the repository backend.
type Store struct {
	Driver string `yaml:"driver"`         // "memory" or "sqlite"
	Path   string `yaml:"path,omitempty"` // SQLite file, required for sqlite
}

// Log configures structured logging.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Chat describes the LLM used by the chat assistant.
type Chat struct {
	Provider   string `yaml:"provider"`              // anthropic or openai
	Model      string `yaml:"model,omitempty"`       // Model name
	APIKeyEnv  string `yaml:"api_key_env,omitempty"` // Env var name containing API key
	BaseURL    string `yaml:"base_url,omitempty"`    // Override the provider endpoint
	MaxTokens  int    `yaml:"max_tokens,omitempty"`  // Reply token limit (0 = default 1000)
	TimeoutSec int    `yaml:"timeout_sec,omitempty"` // Timeout in seconds (0 = default 60)
}

// NATS configures the NATS event transport. An empty URL disables it.
type NATS struct {
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// Ingest configures analysis file import.
type Ingest struct {
	Dir     string `yaml:"dir,omitempty"`     // Directory to watch; empty disables watching
	Pattern string `yaml:"pattern,omitempty"` // doublestar pattern relative to Dir
	Workers int    `yaml:"workers,omitempty"` // Parallel imports (0 = default 4)
}

// DefaultTimeout returns the effective chat timeout in seconds.
func (c Chat) DefaultTimeout() int {
	if c.TimeoutSec > 0 {
		return c.TimeoutSec
	}
	return 60
}

// EffectiveMaxTokens returns the reply token limit.
func (c Chat) EffectiveMaxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1000
}

// APIKey reads the API key from the configured environment variable.
func (c Chat) APIKey() (string, error) {
	if c.APIKeyEnv == "" {
		return "", fmt.Errorf("chat: api_key_env is not configured")
	}
	key := os.Getenv(c.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("chat: environment variable %s is not set", c.APIKeyEnv)
	}
	return key, nil
}

// EffectiveWorkers returns the ingest concurrency.
func (i Ingest) EffectiveWorkers() int {
	if i.Workers > 0 {
		return i.Workers
	}
	return 4
}

// Load reads and parses the config file at the given path. Sections left
// out of the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to the given path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns a starter config.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Server:  Server{Addr: ":8080", Metrics: true},
		Store:   Store{Driver: "sqlite", Path: ".taskplan/tasks.db"},
		Log:     Log{Level: "info", Format: "text"},
		Chat: Chat{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		NATS:   NATS{SubjectPrefix: "taskplan"},
		Ingest: Ingest{Pattern: "**/*.json", Workers: 4},
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store: path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store: driver must be 'memory' or 'sqlite', got %q", c.Store.Driver)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log: format must be 'text' or 'json', got %q", c.Log.Format)
	}

	if c.Chat.Provider != "" && c.Chat.Provider != "anthropic" && c.Chat.Provider != "openai" {
		return fmt.Errorf("chat: provider must be 'anthropic' or 'openai', got %q", c.Chat.Provider)
	}
	if c.Chat.MaxTokens < 0 || c.Chat.TimeoutSec < 0 {
		return fmt.Errorf("chat: max_tokens and timeout_sec must not be negative")
	}

	if c.Ingest.Workers < 0 {
		return fmt.Errorf("ingest: workers must not be negative")
	}
	return nil
}
