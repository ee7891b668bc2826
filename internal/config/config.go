package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.fadeline/config.toml.
type Config struct {
	DefaultUser string     `toml:"default_user"`
	API         APIConfig  `toml:"api"`
	Sync        SyncConfig `toml:"sync"`
}

// APIConfig configures the remote Fadeline REST API.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SyncConfig tunes the background sync and network probing loops.
type SyncConfig struct {
	IntervalSeconds      int `toml:"interval_seconds"`
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`
	RetryLimit           int `toml:"retry_limit"`
	MessageMaxAgeDays    int `toml:"message_max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "https://api.fadeline.app",
			TimeoutSeconds: 30,
		},
		Sync: SyncConfig{
			IntervalSeconds:      30,
			ProbeIntervalSeconds: 10,
			RetryLimit:           3,
			MessageMaxAgeDays:    30,
		},
	}
}

func (c *Config) merge(base *Config) {
	if c.API.BaseURL == "" {
		c.API.BaseURL = base.API.BaseURL
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = base.API.TimeoutSeconds
	}
	if c.Sync.IntervalSeconds <= 0 {
		c.Sync.IntervalSeconds = base.Sync.IntervalSeconds
	}
	if c.Sync.ProbeIntervalSeconds <= 0 {
		c.Sync.ProbeIntervalSeconds = base.Sync.ProbeIntervalSeconds
	}
	if c.Sync.RetryLimit <= 0 {
		c.Sync.RetryLimit = base.Sync.RetryLimit
	}
	if c.Sync.MessageMaxAgeDays <= 0 {
		c.Sync.MessageMaxAgeDays = base.Sync.MessageMaxAgeDays
	}
}

// Load reads config from the given path. Unset fields fall back to
// defaults; a missing file yields the defaults so first runs work
// before anything has been saved.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	cfg.merge(Default())
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// RequestTimeout returns the API timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// SyncInterval returns the background sync period.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// ProbeInterval returns the connectivity probe period.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Sync.ProbeIntervalSeconds) * time.Second
}

// MessageMaxAge returns the retention window for CleanOldData.
func (c *Config) MessageMaxAge() time.Duration {
	return time.Duration(c.Sync.MessageMaxAgeDays) * 24 * time.Hour
}
