// Package loadgen drives a running service with random feature sets and
// verifies that light, preview and full results agree.
package loadgen

import (
	"errors"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL      = "http://localhost:9080"
	DefaultRequests     = 1000
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultJobTimeout   = 2 * time.Minute
)

// Errors returned by Run.
var (
	ErrUnhealthy    = errors.New("service is not healthy")
	ErrVerification = errors.New("verification failed")
	ErrInvalidInput = errors.New("invalid loadgen config")
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Requests     int           // Number of inputs to generate
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // Delay between job polls
	JobTimeout   time.Duration // Upper bound on waiting for one job
	Seed         uint64        // Generator seed; 0 picks a random one
	OutputFile   string        // Optional JSON dump of generated inputs
	Verbose      bool          // Log every mismatch
}

func (c *Config) validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base url is required"))
	}
	if c.Requests <= 0 {
		errs = append(errs, errors.New("requests must be > 0"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return errors.Join(ErrInvalidInput, err)
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = DefaultJobTimeout
	}
	return out
}

// Stats summarizes a run.
type Stats struct {
	Requests      int
	LightOK       int
	FullAccepted  int
	Backpressured int
	Completed     int
	JobsFailed    int
	Mismatches    int
	Errors        int
	Duration      time.Duration
	AvgJobLatency time.Duration
}
