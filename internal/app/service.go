// Package service provides the prediction service that implements the
// dependencies required by the HTTP API: the synchronous light path and the
// job scheduler behind the asynchronous full path.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	taskqueue "github.com/okian/medrisk/internal/adapters/mq/queue"
	workerpool "github.com/okian/medrisk/internal/adapters/mq/worker"
	"github.com/okian/medrisk/internal/adapters/repository"
	"github.com/okian/medrisk/internal/domain/dedupe"
	"github.com/okian/medrisk/internal/domain/features"
	"github.com/okian/medrisk/internal/domain/job"
	"github.com/okian/medrisk/internal/domain/scoring"
	"github.com/okian/medrisk/pkg/logger"
	"github.com/okian/medrisk/pkg/metrics"
)

const msgCancelled = "cancelled by request"

// Submission is the outcome of Submit. Duplicate is set when the
// idempotency key was already bound to Job.
type Submission struct {
	Job       job.Job
	Duplicate bool
}

// Service implements the API dependencies for the prediction system.
type Service struct {
	mu sync.RWMutex

	// Core components
	engine  *scoring.Engine
	jobs    *repository.MemoryStore
	deduper dedupe.Deduper
	queue   taskqueue.Queue
	pool    *workerpool.Pool

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	fullDelay     time.Duration
	delayFunc     scoring.DelayFunc
	retention     time.Duration
	maxJobs       int
	sweepInterval time.Duration
	now           func() time.Time

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued full-prediction jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithIdempotencyCacheSize sets how many idempotency keys are remembered.
func WithIdempotencyCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFullDelay sets the simulated latency of the full model.
func WithFullDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.fullDelay = d
		}
	}
}

// WithDelayFunc replaces how the full model waits out its latency.
func WithDelayFunc(fn scoring.DelayFunc) Option {
	return func(s *Service) {
		s.delayFunc = fn
	}
}

// WithRetention sets how long finished jobs stay readable.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithMaxJobs caps the number of tracked jobs.
func WithMaxJobs(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxJobs = n
		}
	}
}

// WithSweepInterval sets how often finished jobs are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock replaces the time source for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU(),
		queueSize:     1024,
		dedupeSize:    50000,
		fullDelay:     2500 * time.Millisecond,
		retention:     15 * time.Minute,
		maxJobs:       100000,
		sweepInterval: 30 * time.Second,
		now:           time.Now,
		logger:        nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	engineOpts := []scoring.Option{scoring.WithFullDelay(s.fullDelay)}
	if s.delayFunc != nil {
		engineOpts = append(engineOpts, scoring.WithDelayFunc(s.delayFunc))
	}
	s.engine = scoring.NewEngine(engineOpts...)

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting prediction service...")

	s.jobs = repository.NewMemoryStore(ctx,
		repository.WithRetention(s.retention),
		repository.WithMaxJobs(s.maxJobs),
		repository.WithSweepInterval(s.sweepInterval),
		repository.WithClock(s.now),
	)
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.queue = taskqueue.NewInMemoryQueue(
		taskqueue.WithCapacity(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.engine, s.jobs,
		workerpool.WithClock(s.now),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "prediction service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("fullDelay", s.engine.FullDelay()),
	)

	return nil
}

// Stop gracefully shuts down the service. Running jobs are cancelled and
// queued ones are failed.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping prediction service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	_ = s.jobs.Close()

	s.started = false
	s.logger.Info(ctx, "prediction service stopped")
}

// Ready reports whether the service accepts full-prediction jobs.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// PredictLight computes the light score synchronously.
func (s *Service) PredictLight(_ context.Context, fs features.FeatureSet) scoring.Result {
	start := time.Now()
	res := s.engine.LightScore(fs)
	metrics.RecordPrediction(metrics.PathLight, float64(time.Since(start).Microseconds())/1000)
	return res
}

// Submit computes the preview, registers a pending job and enqueues the
// full prediction. A non-empty idempotency key that is already bound
// returns the original job instead of creating a new one.
func (s *Service) Submit(ctx context.Context, fs features.FeatureSet, idempotencyKey string) (Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return Submission{}, ErrNotStarted
	}

	id := uuid.NewString()
	preview := s.engine.LightScore(fs)
	j := job.New(id, fs, preview, s.now())
	if err := s.jobs.Insert(ctx, j); err != nil {
		return Submission{}, fmt.Errorf("insert job: %w", err)
	}

	if idempotencyKey != "" {
		if sub, ok, err := s.claim(ctx, idempotencyKey, id); ok || err != nil {
			_ = s.jobs.Delete(ctx, id)
			return sub, err
		}
	}

	task := job.Task{JobID: id, Features: fs, Enqueued: time.Now()}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		_ = s.jobs.Delete(ctx, id)
		s.release(ctx, idempotencyKey, id)
		switch {
		case errors.Is(err, taskqueue.ErrFull):
			s.logger.Warn(ctx, "job queue full, rejecting submission", logger.Int("capacity", s.queue.Cap()))
			return Submission{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		case errors.Is(err, taskqueue.ErrClosed):
			return Submission{}, fmt.Errorf("%w: %w", ErrNotStarted, err)
		default:
			return Submission{}, fmt.Errorf("enqueue job: %w", err)
		}
	}

	metrics.RecordJobSubmitted()
	s.logger.Debug(ctx, "job submitted",
		logger.String("jobID", id),
		logger.Float64("previewRisk", preview.Risk),
	)

	return Submission{Job: j}, nil
}

// claim binds key to the already inserted job id. ok is true when another
// job owns the key, in which case that job is returned as a duplicate.
func (s *Service) claim(ctx context.Context, key, id string) (Submission, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		owner, seen := s.deduper.Claim(ctx, key, id)
		if !seen {
			return Submission{}, false, nil
		}

		existing, err := s.jobs.Get(ctx, owner)
		if err == nil {
			metrics.RecordJobReplayed()
			s.logger.Debug(ctx, "idempotent replay",
				logger.String("jobID", owner),
				logger.String("idempotencyKey", key),
			)
			return Submission{Job: existing, Duplicate: true}, true, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return Submission{}, false, fmt.Errorf("lookup job: %w", err)
		}

		// Owners insert before claiming, so a missing owner was swept or
		// abandoned. Only that owner's binding is dropped.
		s.deduper.Release(ctx, key, owner)
	}
	return Submission{}, false, fmt.Errorf("%w: idempotency key contended", ErrBackpressure)
}

func (s *Service) release(ctx context.Context, key, id string) {
	if key != "" {
		s.deduper.Release(ctx, key, id)
	}
}

// Job returns the current snapshot of a job.
func (s *Service) Job(ctx context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return job.Job{}, ErrNotStarted
	}
	return s.jobs.Get(ctx, id)
}

// Cancel requests cooperative cancellation. A pending job fails
// immediately; a running job has its context cancelled and fails once the
// worker observes it; a finished job is returned unchanged.
func (s *Service) Cancel(ctx context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return job.Job{}, ErrNotStarted
	}

	current, err := s.jobs.Get(ctx, id)
	if err != nil {
		return job.Job{}, err
	}

	if current.State == job.Pending {
		rec := job.ErrorRecord{Code: job.CodeCancelled, Message: msgCancelled}
		failed, err := s.jobs.Fail(ctx, id, rec, s.now())
		switch {
		case err == nil:
			metrics.RecordJobCancelled()
			metrics.RecordJobFinished(string(job.Failed))
			s.logger.Info(ctx, "pending job cancelled", logger.String("jobID", id))
			return failed, nil
		case errors.Is(err, repository.ErrInvalidTransition):
			// A worker picked it up in between.
			current = failed
		default:
			return job.Job{}, err
		}
	}

	if current.State == job.Running && s.pool.Cancel(id) {
		metrics.RecordJobCancelled()
		s.logger.Info(ctx, "running job cancellation requested", logger.String("jobID", id))
	}

	return current, nil
}

// SetFullDelay changes the simulated latency for jobs that start later.
func (s *Service) SetFullDelay(d time.Duration) {
	s.engine.SetFullDelay(d)
	if s.logger != nil {
		s.logger.Info(context.Background(), "full model delay updated", logger.Duration("fullDelay", d))
	}
}

// FullDelay reports the current simulated latency.
func (s *Service) FullDelay() time.Duration {
	return s.engine.FullDelay()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"fullDelayMs": s.engine.FullDelay().Milliseconds(),
	}

	if s.started {
		byState := s.jobs.CountByState(ctx)
		jobs := make(map[string]int, len(byState))
		for state, n := range byState {
			jobs[string(state)] = n
		}

		stats["queueLength"] = s.queue.Len(ctx)
		stats["runningJobs"] = s.pool.Running()
		stats["jobsTotal"] = s.jobs.Count(ctx)
		stats["jobs"] = jobs
		stats["idempotencyKeys"] = s.deduper.Size()
	}

	return stats
}
