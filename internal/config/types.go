// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Search    SearchConfig    `mapstructure:"search"`
	Retention RetentionConfig `mapstructure:"retention"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig holds storage engine settings
type DatabaseConfig struct {
	Type          string `mapstructure:"type"` // "sqlite" or "postgres"
	DataDir       string `mapstructure:"data_dir"`
	Environment   string `mapstructure:"environment"` // production, test, isolated
	InMemory      bool   `mapstructure:"in_memory"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	OpenTimeoutMS int    `mapstructure:"open_timeout_ms"`
}

// RetryConfig holds the backoff policy applied to store operations
type RetryConfig struct {
	MaxAttempts       int     `mapstructure:"max_attempts"`
	BaseDelayMS       int     `mapstructure:"base_delay_ms"`
	MaxDelayMS        int     `mapstructure:"max_delay_ms"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
}

// SearchConfig holds search index settings
type SearchConfig struct {
	TTLSeconds int     `mapstructure:"ttl_seconds"`
	CacheSize  int     `mapstructure:"cache_size"`
	MinScore   float64 `mapstructure:"min_score"`
}

// RetentionConfig controls the cleanup horizon
type RetentionConfig struct {
	Days int `mapstructure:"days"`
}

// SchedulerConfig controls the periodic cleanup and reindex pass
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Database types
const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypePostgres = "postgres"
)

// Environments
const (
	EnvironmentProduction = "production"
	EnvironmentTest       = "test"
	EnvironmentIsolated   = "isolated"
)

// ValidEnvironments returns all valid environment names
func ValidEnvironments() []string {
	return []string{
		EnvironmentProduction,
		EnvironmentTest,
		EnvironmentIsolated,
	}
}

// isValidType is a generic helper to check if a type is in a list of valid types
func isValidType(aType string, validTypes []string) bool {
	for _, valid := range validTypes {
		if aType == valid {
			return true
		}
	}
	return false
}

// IsValidEnvironment checks if an environment name is valid
func IsValidEnvironment(env string) bool {
	return isValidType(env, ValidEnvironments())
}
