// Package config loads coursedesk configuration from the environment.
//
// Values are read with github.com/caarlos0/env after an optional .env file
// has been loaded with github.com/joho/godotenv. Call Sanitize after loading
// to apply guardrails.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig is the root configuration.
type AppConfig struct {
	// Profile names the stored credential to use.
	Profile string `env:"COURSEDESK_PROFILE" envDefault:"default"`

	// EncryptionKey overrides the keychain-managed credential key.
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	API      APIConfig
	Channel  ChannelConfig
	Tracking TrackingConfig
	Database DBConfig
	Log      LogConfig `envPrefix:"LOG_"`
}

// APIConfig configures the REST request layer.
type APIConfig struct {
	BaseURL    string        `env:"COURSEDESK_API_URL" envDefault:"http://localhost:8080/api"`
	Timeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"60s"`
	RetryCount int           `env:"HTTP_RETRY_COUNT" envDefault:"3"`
}

// ChannelConfig configures the push channel.
type ChannelConfig struct {
	URL                    string        `env:"COURSEDESK_SOCKET_URL" envDefault:"ws://localhost:8080/socket"`
	MinBackoff             time.Duration `env:"RECONNECT_MIN_BACKOFF" envDefault:"500ms"`
	MaxBackoff             time.Duration `env:"RECONNECT_MAX_BACKOFF" envDefault:"30s"`
	CredentialPollInterval time.Duration `env:"CREDENTIAL_POLL_INTERVAL" envDefault:"30s"`
}

// TrackingConfig configures job tracking and notifications.
type TrackingConfig struct {
	GracePeriod   time.Duration `env:"JOB_GRACE_PERIOD" envDefault:"4s"`
	ToastDuration time.Duration `env:"TOAST_DURATION" envDefault:"7s"`
}

// DBConfig configures credential storage.
type DBConfig struct {
	// URL is DATABASE_URL; sqlite:// or postgres://. Empty selects the
	// default sqlite file under the user config directory.
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"5"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	// File receives logs while the terminal UI owns stdout. Empty selects
	// coursedesk.log under the user config directory.
	File string `env:"FILE"`
}

// Load reads .env (if present) and the environment.
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// Sanitize applies guardrails to values loaded from env.
func (c *AppConfig) Sanitize() {
	c.Profile = strings.TrimSpace(c.Profile)
	if c.Profile == "" {
		c.Profile = "default"
	}
	c.API.Sanitize()
	c.Channel.Sanitize()
	c.Tracking.Sanitize()
	c.Database.Sanitize()
	c.Log.Sanitize()
}

// Sanitize clamps request settings.
func (c *APIConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	if c.RetryCount > 10 {
		c.RetryCount = 10
	}
}

// Sanitize keeps backoff bounds ordered and the poll interval sane.
func (c *ChannelConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	if c.MinBackoff <= 0 {
		c.MinBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = c.MinBackoff
	}
	if c.CredentialPollInterval < time.Second {
		c.CredentialPollInterval = 30 * time.Second
	}
}

// Sanitize restores defaults for non-positive durations.
func (c *TrackingConfig) Sanitize() {
	if c.GracePeriod <= 0 {
		c.GracePeriod = 4 * time.Second
	}
	if c.ToastDuration <= 0 {
		c.ToastDuration = 7 * time.Second
	}
}

// Sanitize keeps pool sizes positive.
func (c *DBConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 5
	}
	if c.MaxIdleConns < 0 {
		c.MaxIdleConns = 0
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// Sanitize normalizes level and format names.
func (c *LogConfig) Sanitize() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	switch c.Level {
	case "debug", "info", "warn", "error":
	case "warning":
		c.Level = "warn"
	default:
		c.Level = "info"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != "console" {
		c.Format = "json"
	}
}

// AppDir returns (and creates) the per-user application directory.
func AppDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	dir := filepath.Join(configDir, "coursedesk")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}
	return dir, nil
}
