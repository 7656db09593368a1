// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Runner    RunnerConfig    `yaml:"runner"`
	Countdown CountdownConfig `yaml:"countdown"`
	Log       LogConfig       `yaml:"log"`
	Messages  MessagesConfig  `yaml:"messages"`
}

// StorageConfig represents persistence configuration.
type StorageConfig struct {
	Path string `yaml:"path" default:"setflow.db"`
}

// RunnerConfig represents session-runner configuration.
type RunnerConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms" default:"250" validate:"gte=50,lte=1000"`
}

// TickInterval returns the sampler interval as a duration.
func (r RunnerConfig) TickInterval() time.Duration {
	return time.Duration(r.TickIntervalMs) * time.Millisecond
}

// CountdownConfig represents pre-roll defaults, used until the user saves
// their own settings. Enabled is a pointer so an explicit "false" survives
// defaulting.
type CountdownConfig struct {
	Enabled *bool `yaml:"enabled" default:"true"`
	Seconds int   `yaml:"seconds" default:"3" validate:"gte=1,lte=10"`
}

// IsEnabled reports whether the pre-roll countdown is enabled.
func (c CountdownConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Output string `yaml:"output" default:"stdout"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	SessionExpired string `yaml:"session_expired" default:"Your previous session expired and was discarded."`
	SessionActive  string `yaml:"session_active" default:"Another session is already in progress. Resume or discard it first."`
	NoSession      string `yaml:"no_session" default:"No session to resume."`
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults so a fresh install needs no config file at all. Environment
// variables take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SETFLOW_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("SETFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
