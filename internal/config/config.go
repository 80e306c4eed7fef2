// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Provide New(ctx) to build a Config with defaults.
//   - Load layers defaults, an optional YAML file and MEDRISK_ env vars.
//   - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

// Log formats understood by the logger.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// WorkerCount caps how many full predictions run concurrently.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds pending full predictions before backpressure.
	QueueSize int `koanf:"queue_size"`

	// FullDelayMS is the simulated latency of the full model.
	FullDelayMS int `koanf:"full_delay_ms"`

	// JobRetentionS is how long finished jobs stay readable.
	JobRetentionS int `koanf:"job_retention_s"`

	// MaxJobs caps the job store; the oldest finished jobs go first.
	MaxJobs int `koanf:"max_jobs"`

	// IdempotencyCacheSize bounds the remembered Idempotency-Key values.
	IdempotencyCacheSize int `koanf:"idempotency_cache_size"`

	// FullRatePerSec limits POST /predict/full. Zero disables the limiter.
	FullRatePerSec float64 `koanf:"full_rate_per_sec"`

	// FullRateBurst is the token bucket size of the limiter.
	FullRateBurst int `koanf:"full_rate_burst"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            FormatText,
		Addr:                 ":9080",
		WorkerCount:          runtime.NumCPU(),
		QueueSize:            1024,
		FullDelayMS:          2500,
		JobRetentionS:        900,
		MaxJobs:              100_000,
		IdempotencyCacheSize: 50_000,
		FullRatePerSec:       0,
		FullRateBurst:        20,
	}
}

// FullDelay returns FullDelayMS as a duration.
func (c *Config) FullDelay() time.Duration {
	return time.Duration(c.FullDelayMS) * time.Millisecond
}

// JobRetention returns JobRetentionS as a duration.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionS) * time.Second
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.LogFormat != FormatText && c.LogFormat != FormatJSON {
		errs = append(errs, fmt.Errorf("log_format must be %q or %q, got %q", FormatText, FormatJSON, c.LogFormat))
	}
	for _, f := range []struct {
		key string
		val int
	}{
		{"worker_count", c.WorkerCount},
		{"queue_size", c.QueueSize},
		{"full_delay_ms", c.FullDelayMS},
		{"job_retention_s", c.JobRetentionS},
		{"max_jobs", c.MaxJobs},
		{"idempotency_cache_size", c.IdempotencyCacheSize},
		{"full_rate_burst", c.FullRateBurst},
	} {
		if f.val < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", f.key, f.val))
		}
	}
	if c.FullRatePerSec < 0 {
		errs = append(errs, fmt.Errorf("full_rate_per_sec must not be negative, got %g", c.FullRatePerSec))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
