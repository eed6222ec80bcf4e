// Package config loads and persists the walink configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/sellerdesk/walink/internal/paths"
)

// Env override names. The API secret in particular should live in the
// environment rather than in walink.json on shared hosts.
const (
	EnvAPISecret = "WALINK_API_SECRET"
	EnvAPIListen = "WALINK_API_LISTEN"
)

// Config represents the merged walink configuration
type Config struct {
	API       APIConfig       `json:"api"`
	Session   SessionConfig   `json:"session"`
	Responder ResponderConfig `json:"responder"`
	Status    StatusConfig    `json:"status"`
	Sweep     SweepConfig     `json:"sweep"`
	Log       LogConfig       `json:"log"`
}

// APIConfig configures the gateway HTTP API.
type APIConfig struct {
	Listen string `json:"listen"` // e.g. "127.0.0.1:8471"
	Secret string `json:"secret"` // shared secret; EnvAPISecret overrides
}

// SessionConfig configures session lifecycle timing.
type SessionConfig struct {
	PairingTimeoutSeconds int `json:"pairingTimeoutSeconds"` // whole pairing session
	PairingWaitSeconds    int `json:"pairingWaitSeconds"`    // API wait for first code
	RestoreConcurrency    int `json:"restoreConcurrency"`    // in-flight restores on boot
	RestoreStaggerMs      int `json:"restoreStaggerMs"`      // delay between restore launches
}

// ResponderConfig points at the external assistant service.
type ResponderConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// StatusConfig points at the system-of-record status webhook.
type StatusConfig struct {
	WebhookURL string `json:"webhookUrl"`
}

// SweepConfig configures the periodic reconcile job.
type SweepConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"` // cron expression
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
}

// Defaults returns a config populated with defaults.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			Listen: "127.0.0.1:8471",
		},
		Session: SessionConfig{
			PairingTimeoutSeconds: 180,
			PairingWaitSeconds:    30,
			RestoreConcurrency:    4,
			RestoreStaggerMs:      250,
		},
		Responder: ResponderConfig{
			TimeoutSeconds: 30,
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Schedule: "@every 10m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from walink.json, merged over defaults.
// A .env file in the working directory is loaded first (if present), and
// WALINK_API_SECRET / WALINK_API_LISTEN always override the file.
func Load() (*Config, string, error) {
	// Best effort: a missing .env is the common case
	_ = godotenv.Load()

	cfg := Defaults()

	path, err := paths.ConfigPath()
	if err != nil {
		return nil, "", err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, "", err
	}

	return cfg, path, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPISecret); v != "" {
		c.API.Secret = v
	}
	if v := os.Getenv(EnvAPIListen); v != "" {
		c.API.Listen = v
	}
}

func (c *Config) validate() error {
	if c.API.Secret == "" {
		return fmt.Errorf("no API secret configured (set api.secret in walink.json or %s)", EnvAPISecret)
	}
	if c.Session.PairingTimeoutSeconds <= 0 {
		return fmt.Errorf("session.pairingTimeoutSeconds must be positive")
	}
	if c.Session.PairingWaitSeconds <= 0 {
		return fmt.Errorf("session.pairingWaitSeconds must be positive")
	}
	if c.Session.RestoreConcurrency <= 0 {
		return fmt.Errorf("session.restoreConcurrency must be positive")
	}
	return nil
}

// WriteDefault writes a default config (without the secret) to the default
// location, for first-run convenience. Does not overwrite an existing file.
func WriteDefault() (string, error) {
	path, err := paths.DefaultConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := AtomicWriteJSON(path, Defaults(), 0600); err != nil {
		return "", err
	}
	return path, nil
}
