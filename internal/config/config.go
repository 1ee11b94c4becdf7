// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogJSON switches the logger to JSON encoding.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	DatabaseDriver string `koanf:"database_driver"`
	DatabaseDSN    string `koanf:"database_dsn"`

	// PolicyAlpha is the EMA smoothing factor applied to the previous error average.
	PolicyAlpha       float64 `koanf:"policy_alpha"`
	PolicyWeightFloor float64 `koanf:"policy_weight_floor"`

	CalibrationMinSamples     int     `koanf:"calibration_min_samples"`
	CalibrationBiasThreshold  float64 `koanf:"calibration_bias_threshold"`
	CalibrationMAEThreshold   float64 `koanf:"calibration_mae_threshold"`
	CalibrationLowTrustWeight float64 `koanf:"calibration_low_trust_weight"`
	ContextCacheSize          int     `koanf:"context_cache_size"`
	ContextCacheTTLMS         int     `koanf:"context_cache_ttl_ms"`

	// RedisAddr enables the shared context cache when set.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// GeminiAPIKey enables the Gemini scorer; without it the keyword scorer is used.
	GeminiAPIKey     string `koanf:"gemini_api_key"`
	GeminiModel      string `koanf:"gemini_model"`
	ScoringTimeoutMS int    `koanf:"scoring_timeout_ms"`
	BatchConcurrency int    `koanf:"batch_concurrency"`

	// EventQueueSize bounds the in-memory evaluation queue.
	EventQueueSize int `koanf:"queue_size"`
	WorkerCount    int `koanf:"worker_count"`
	DedupeSize     int `koanf:"dedupe_size"`

	// MaxRewardLimit caps GET /api/rewards/{job_id}?limit.
	MaxRewardLimit int `koanf:"max_reward_limit"`
}

// New returns a Config populated with defaults. Context is accepted first to
// follow the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                  "info",
		Addr:                      ":9080",
		DatabaseDriver:            DriverSQLite,
		DatabaseDSN:               "file:talentloop.db?_busy_timeout=5000",
		PolicyAlpha:               0.7,
		PolicyWeightFloor:         0.05,
		CalibrationMinSamples:     2,
		CalibrationBiasThreshold:  5,
		CalibrationMAEThreshold:   15,
		CalibrationLowTrustWeight: 0.5,
		ContextCacheSize:          1024,
		ContextCacheTTLMS:         60_000,
		GeminiModel:               "gemini-2.0-flash",
		ScoringTimeoutMS:          20_000,
		BatchConcurrency:          4,
		EventQueueSize:            10_000,
		WorkerCount:               runtime.NumCPU(),
		DedupeSize:                100_000,
		MaxRewardLimit:            500,
	}
}

// ContextCacheTTL returns the context cache TTL as a duration.
func (c *Config) ContextCacheTTL() time.Duration {
	return time.Duration(c.ContextCacheTTLMS) * time.Millisecond
}

// ScoringTimeout returns the per-call scoring timeout as a duration.
func (c *Config) ScoringTimeout() time.Duration {
	return time.Duration(c.ScoringTimeoutMS) * time.Millisecond
}

// Validate checks invariants the rest of the service relies on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverMemory:
		return fmt.Errorf("%w: unknown database_driver %q", ErrInvalidConfig, c.DatabaseDriver)
	case c.DatabaseDriver != DriverMemory && strings.TrimSpace(c.DatabaseDSN) == "":
		return fmt.Errorf("%w: database_dsn must not be empty", ErrInvalidConfig)
	case c.PolicyAlpha < 0 || c.PolicyAlpha >= 1:
		return fmt.Errorf("%w: policy_alpha must be in [0,1)", ErrInvalidConfig)
	case c.PolicyWeightFloor <= 0 || c.PolicyWeightFloor > 1:
		return fmt.Errorf("%w: policy_weight_floor must be in (0,1]", ErrInvalidConfig)
	case c.CalibrationMinSamples < 1:
		return fmt.Errorf("%w: calibration_min_samples must be positive", ErrInvalidConfig)
	case c.EventQueueSize <= 0 || c.WorkerCount <= 0 || c.DedupeSize <= 0:
		return fmt.Errorf("%w: queue_size, worker_count and dedupe_size must be positive", ErrInvalidConfig)
	case c.BatchConcurrency <= 0:
		return fmt.Errorf("%w: batch_concurrency must be positive", ErrInvalidConfig)
	case c.MaxRewardLimit <= 0:
		return fmt.Errorf("%w: max_reward_limit must be positive", ErrInvalidConfig)
	}
	return nil
}
