// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tejzpr/dayline/internal/errs"
)

const (
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = ".dayline/configs"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.json"
	// DefaultDataDir is the default storage directory, relative to home
	DefaultDataDir = ".dayline/data"
	// EnvPrefix prefixes environment overrides, e.g. DAYLINE_DATABASE_ENVIRONMENT
	EnvPrefix = "DAYLINE"
)

// Load reads configuration from ~/.dayline/configs/config.json
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(homeDir, DefaultConfigDir))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	v.SetDefault("database.type", DatabaseTypeSQLite)
	v.SetDefault("database.data_dir", filepath.Join(homeDir, DefaultDataDir))
	v.SetDefault("database.environment", EnvironmentProduction)
	v.SetDefault("database.in_memory", false)
	v.SetDefault("database.postgres_dsn", "")
	v.SetDefault("database.open_timeout_ms", 5000)

	v.SetDefault("retry.max_attempts", errs.DefaultMaxAttempts)
	v.SetDefault("retry.base_delay_ms", int(errs.DefaultBaseDelay/time.Millisecond))
	v.SetDefault("retry.max_delay_ms", int(errs.DefaultMaxDelay/time.Millisecond))
	v.SetDefault("retry.backoff_multiplier", errs.DefaultBackoffMultiplier)

	v.SetDefault("search.ttl_seconds", 300)
	v.SetDefault("search.cache_size", 100)
	v.SetDefault("search.min_score", 0.1)

	v.SetDefault("retention.days", 90)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_minutes", 30)

	v.SetDefault("log.level", "info")
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Database.Type != DatabaseTypeSQLite && cfg.Database.Type != DatabaseTypePostgres {
		return fmt.Errorf("database.type must be 'sqlite' or 'postgres', got '%s'", cfg.Database.Type)
	}
	if cfg.Database.Type == DatabaseTypeSQLite && cfg.Database.DataDir == "" && !cfg.Database.InMemory {
		return fmt.Errorf("database.data_dir is required when type is 'sqlite'")
	}
	if cfg.Database.Type == DatabaseTypePostgres && cfg.Database.PostgresDSN == "" {
		return fmt.Errorf("database.postgres_dsn is required when type is 'postgres'")
	}
	if !IsValidEnvironment(cfg.Database.Environment) {
		return fmt.Errorf("database.environment must be one of %v, got '%s'", ValidEnvironments(), cfg.Database.Environment)
	}
	if cfg.Database.OpenTimeoutMS < 1 {
		return fmt.Errorf("database.open_timeout_ms must be at least 1, got %d", cfg.Database.OpenTimeoutMS)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoff_multiplier must be at least 1, got %g", cfg.Retry.BackoffMultiplier)
	}

	if cfg.Search.TTLSeconds < 1 {
		return fmt.Errorf("search.ttl_seconds must be at least 1, got %d", cfg.Search.TTLSeconds)
	}
	if cfg.Search.CacheSize < 1 {
		return fmt.Errorf("search.cache_size must be at least 1, got %d", cfg.Search.CacheSize)
	}
	if cfg.Search.MinScore < 0 || cfg.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be between 0 and 1, got %g", cfg.Search.MinScore)
	}

	if cfg.Retention.Days < 1 {
		return fmt.Errorf("retention.days must be at least 1, got %d", cfg.Retention.Days)
	}
	if cfg.Scheduler.Enabled && cfg.Scheduler.IntervalMinutes < 1 {
		return fmt.Errorf("scheduler.interval_minutes must be at least 1, got %d", cfg.Scheduler.IntervalMinutes)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, DefaultConfigDir)
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Database: DatabaseConfig{
			Type:          DatabaseTypeSQLite,
			DataDir:       filepath.Join(homeDir, DefaultDataDir),
			Environment:   EnvironmentProduction,
			OpenTimeoutMS: 5000,
		},
		Retry: RetryConfig{
			MaxAttempts:       errs.DefaultMaxAttempts,
			BaseDelayMS:       int(errs.DefaultBaseDelay / time.Millisecond),
			MaxDelayMS:        int(errs.DefaultMaxDelay / time.Millisecond),
			BackoffMultiplier: errs.DefaultBackoffMultiplier,
		},
		Search: SearchConfig{
			TTLSeconds: 300,
			CacheSize:  100,
			MinScore:   0.1,
		},
		Retention: RetentionConfig{
			Days: 90,
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			IntervalMinutes: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// RetryOptions converts the retry section into store retry options
func (c *Config) RetryOptions() errs.RetryOptions {
	return errs.RetryOptions{
		MaxAttempts:       c.Retry.MaxAttempts,
		BaseDelay:         time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:          time.Duration(c.Retry.MaxDelayMS) * time.Millisecond,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
	}
}

// OpenTimeout returns the adapter open timeout
func (c *Config) OpenTimeout() time.Duration {
	return time.Duration(c.Database.OpenTimeoutMS) * time.Millisecond
}

// SearchTTL returns the search lane time-to-live
func (c *Config) SearchTTL() time.Duration {
	return time.Duration(c.Search.TTLSeconds) * time.Second
}

// RetentionHorizon returns the cleanup cutoff relative to now
func (c *Config) RetentionHorizon(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.Retention.Days)
}
