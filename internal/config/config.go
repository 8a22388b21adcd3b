// Package config provides application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/identity"
)

// Config holds all application configuration.
type Config struct {
	// BackendURL is the base URL of the Biomni agent backend. Both
	// http(s) and ws(s) schemes are accepted; the client rewrites to
	// the WebSocket scheme when dialing.
	BackendURL string `yaml:"backend_url"`

	// Token is a bearer token for the backend; TokenFile, when set,
	// takes precedence and is re-read on every connection attempt.
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`

	// DBPath locates the SQLite session registry.
	DBPath string `yaml:"db_path"`

	// Model and Source are defaults applied to queries that do not
	// override them.
	Model  string `yaml:"model"`
	Source string `yaml:"source"`

	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	ReconnectAttempts   int           `yaml:"reconnect_attempts"`
	ReconnectBackoff    time.Duration `yaml:"reconnect_backoff"`
	ReconnectMaxBackoff time.Duration `yaml:"reconnect_max_backoff"`

	// IdleTimeout is the stream-idle window after which an active turn
	// is finalized heuristically. Zero disables the heuristic.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// SessionTTL controls pruning of stale session registry records.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		BackendURL:          "http://localhost:8000",
		DBPath:              "./data/biomni.db",
		ConnectTimeout:      10 * time.Second,
		ReconnectAttempts:   3,
		ReconnectBackoff:    1 * time.Second,
		ReconnectMaxBackoff: 30 * time.Second,
		IdleTimeout:         90 * time.Second,
		SessionTTL:          30 * 24 * time.Hour,
	}
}

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "biomni.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnv overlays environment variables onto cfg. Only non-empty
// values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.BackendURL, "BIOMNI_BACKEND_URL")
	setString(&cfg.Token, "BIOMNI_TOKEN")
	setString(&cfg.TokenFile, "BIOMNI_TOKEN_FILE")
	setString(&cfg.DBPath, "BIOMNI_DB_PATH")
	setString(&cfg.Model, "BIOMNI_MODEL")
	setString(&cfg.Source, "BIOMNI_SOURCE")
	setDuration(&cfg.ConnectTimeout, "BIOMNI_CONNECT_TIMEOUT")
	setInt(&cfg.ReconnectAttempts, "BIOMNI_RECONNECT_ATTEMPTS")
	setDuration(&cfg.ReconnectBackoff, "BIOMNI_RECONNECT_BACKOFF")
	setDuration(&cfg.ReconnectMaxBackoff, "BIOMNI_RECONNECT_MAX_BACKOFF")
	setDuration(&cfg.IdleTimeout, "BIOMNI_IDLE_TIMEOUT")
	setDuration(&cfg.SessionTTL, "BIOMNI_SESSION_TTL")
}

// Validate checks that all required configuration fields are usable.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be > 0")
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect_attempts must be >= 0")
	}
	if c.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect_backoff must be > 0")
	}
	if c.ReconnectMaxBackoff < c.ReconnectBackoff {
		return fmt.Errorf("reconnect_max_backoff must be >= reconnect_backoff")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must be >= 0")
	}
	return nil
}

// TokenSource builds the credential source implied by the config:
// token_file wins over an inline token, which wins over BIOMNI_TOKEN
// read at connect time.
func (c *Config) TokenSource() identity.TokenSource {
	if c.TokenFile != "" {
		return identity.File(c.TokenFile)
	}
	if c.Token != "" {
		return identity.Static(c.Token)
	}
	return identity.Env("BIOMNI_TOKEN")
}
