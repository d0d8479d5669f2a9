// Package config loads engine configuration from a YAML file with
// environment variable overrides. A .env file, when present, is folded into
// the environment first so local development needs no exported secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/PAIR-code/deliberate-lab-sub006/model"
)

// Config is the engine's full runtime configuration.
type Config struct {
	// APIKeys are the default provider credentials, used when an
	// experiment creator has none stored.
	APIKeys model.APIKeys `yaml:"api_keys"`

	// Store selects the persistence backend.
	Store StoreConfig `yaml:"store"`

	// Engine tunes pipeline and logging behavior.
	Engine EngineConfig `yaml:"engine"`
}

// StoreConfig selects and parameterizes the document store backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the SQLite database file; ignored for the memory backend.
	Path string `yaml:"path"`
}

// EngineConfig tunes the model pipeline and logging.
type EngineConfig struct {
	// RetryDelay is the initial backoff after a transient model failure.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// MaxRetryDelay caps the backoff.
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// LogFormat is json or text.
	LogFormat string `yaml:"log_format"`
	// MaxPromptDepth bounds prompt group nesting.
	MaxPromptDepth int `yaml:"max_prompt_depth"`
	// MetricsAddr, when set, serves Prometheus metrics at this address.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Backend: "memory"},
		Engine: EngineConfig{
			RetryDelay:     time.Second,
			MaxRetryDelay:  10 * time.Second,
			LogLevel:       "info",
			LogFormat:      "json",
			MaxPromptDepth: 16,
		},
	}
}

// Load reads the YAML file at path, then applies environment overrides. An
// empty path skips the file and loads from the environment alone.
func Load(path string) (*Config, error) {
	// Missing .env files are fine; explicit config files are not.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables. Environment
// always wins so deployments can keep secrets out of config files.
func (c *Config) applyEnv() {
	setString(&c.APIKeys.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.APIKeys.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.APIKeys.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.APIKeys.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.APIKeys.OllamaBaseURL, "OLLAMA_BASE_URL")

	setString(&c.Store.Backend, "STORE_BACKEND")
	setString(&c.Store.Path, "STORE_PATH")

	setString(&c.Engine.LogLevel, "LOG_LEVEL")
	setString(&c.Engine.LogFormat, "LOG_FORMAT")
	setString(&c.Engine.MetricsAddr, "METRICS_ADDR")
	setDuration(&c.Engine.RetryDelay, "RETRY_DELAY")
	setDuration(&c.Engine.MaxRetryDelay, "MAX_RETRY_DELAY")
	setInt(&c.Engine.MaxPromptDepth, "MAX_PROMPT_DEPTH")
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("sqlite backend requires store.path")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Engine.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Engine.LogLevel)
	}
	if c.Engine.MaxPromptDepth <= 0 {
		return fmt.Errorf("max_prompt_depth must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
