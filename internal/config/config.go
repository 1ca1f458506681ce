// Package config loads the YAML configuration shared by jobplot and metrics-mock.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultTimezone = "Europe/Zurich"
	DefaultLogLevel = "info"

	EnvClientSecret = "JOBMETRICS_CLIENT_SECRET"
	EnvInfluxToken  = "JOBMETRICS_INFLUX_TOKEN"
)

// Config is the client configuration. It is read once at start-up and not modified afterwards.
type Config struct {
	BaseURL      string        `yaml:"base_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	TokenURL     string        `yaml:"token_url"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryMax     int           `yaml:"retry_max"`
	Timezone     string        `yaml:"timezone"`
	Log          LogConfig     `yaml:"log"`
	Archive      ArchiveConfig `yaml:"archive"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ArchiveConfig selects where fetched series are persisted.
type ArchiveConfig struct {
	SQLite string       `yaml:"sqlite"`
	Influx InfluxConfig `yaml:"influx"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	Token  string `yaml:"token"`
}

// Enabled reports whether every influx setting is present.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Org != "" && c.Bucket != "" && c.Token != ""
}

// Load reads a YAML config file, applies defaults and environment overrides, and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// ApplyEnv overrides secrets from the environment. A variable that is set wins even when empty.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvClientSecret); ok {
		cfg.ClientSecret = v
	}
	if v, ok := os.LookupEnv(EnvInfluxToken); ok {
		cfg.Archive.Influx.Token = v
	}
}

// Validate reports every missing or invalid field.
func Validate(cfg Config) error {
	var result *multierror.Error
	required := []struct {
		key, value string
	}{
		{"base_url", cfg.BaseURL},
		{"client_id", cfg.ClientID},
		{"client_secret", cfg.ClientSecret},
		{"token_url", cfg.TokenURL},
	}
	for _, r := range required {
		if r.value == "" {
			result = multierror.Append(result, fmt.Errorf("%s is required", r.key))
		}
	}
	if cfg.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("timeout must not be negative"))
	}
	if cfg.RetryMax < 0 {
		result = multierror.Append(result, fmt.Errorf("retry_max must not be negative"))
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			result = multierror.Append(result, fmt.Errorf("timezone: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Location returns the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
