package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRetention sets how long terminal jobs stay readable. Zero keeps them
// until evicted by the size cap.
func WithRetention(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithMaxJobs caps the number of tracked jobs. Only terminal jobs are
// evicted to honor the cap. Zero disables it.
func WithMaxJobs(n int) Option {
	return func(s *MemoryStore) {
		if n >= 0 {
			s.maxJobs = n
		}
	}
}

// WithSweepInterval sets the interval of the background sweeper.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithClock replaces the time source used by the background sweeper.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
