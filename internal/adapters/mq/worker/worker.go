// Package worker runs full predictions off the queue and records their
// outcome in the job store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/medrisk/internal/adapters/repository"
	"github.com/okian/medrisk/internal/domain/features"
	"github.com/okian/medrisk/internal/domain/job"
	"github.com/okian/medrisk/internal/domain/scoring"
	"github.com/okian/medrisk/pkg/logger"
	"github.com/okian/medrisk/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Caller-visible failure messages. Raw error text stays in the logs.
const (
	msgInternal  = "full prediction failed"
	msgCancelled = "cancelled by request"
	msgShutdown  = "service shutting down"
)

var errPanic = errors.New("full prediction panicked")

// Task abstracts what workers read off the queue.
type Task = job.Task

// Scorer computes the full result for a feature set.
type Scorer interface {
	FullScore(ctx context.Context, fs features.FeatureSet) (scoring.FullResult, error)
}

// Store records job state transitions.
type Store interface {
	MarkRunning(ctx context.Context, id string, at time.Time) (job.Job, error)
	Complete(ctx context.Context, id string, res scoring.FullResult, at time.Time) (job.Job, error)
	Fail(ctx context.Context, id string, rec job.ErrorRecord, at time.Time) (job.Job, error)
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Task
}

// Worker processes tasks until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current task.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	scorer   Scorer
	store    Store
	name     string
	now      func() time.Time
	inflight *inflight

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, scorer Scorer, store Store, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		scorer:   scorer,
		store:    store,
		name:     "worker",
		now:      time.Now,
		inflight: newInflight(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.processTask(ctx, t); err != nil {
				w.logger.Error(ctx, "error processing job", logger.String("jobID", t.JobID), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processTask runs one job. A job that is no longer pending (for example
// cancelled while queued) is skipped.
func (w *InMemoryWorker) processTask(ctx context.Context, t Task) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()
	metrics.RecordJobQueueWait(float64(start.Sub(t.Enqueued).Milliseconds()))

	// Register before the job becomes visible as running so a cancel that
	// observes Running always finds the hook.
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.inflight.add(t.JobID, cancel)
	defer w.inflight.remove(t.JobID)

	// Store writes must land even when the job context is cancelled.
	storeCtx := context.WithoutCancel(ctx)

	if _, err := w.store.MarkRunning(storeCtx, t.JobID, w.now()); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) || errors.Is(err, repository.ErrNotFound) {
			w.logger.Debug(ctx, "skipping job", logger.String("jobID", t.JobID), logger.Error(err))
			return nil
		}
		return fmt.Errorf("mark running: %w", err)
	}

	metrics.AddWorkerBusy(1)
	defer metrics.AddWorkerBusy(-1)

	res, err := w.score(jobCtx, t.Features)
	if err != nil {
		rec := w.failureRecord(ctx, err)
		if _, ferr := w.store.Fail(storeCtx, t.JobID, rec, w.now()); ferr != nil {
			return fmt.Errorf("mark failed: %w", ferr)
		}
		metrics.RecordJobFinished(string(job.Failed))
		if rec.Code == job.CodeCancelled {
			w.logger.Info(ctx, "job cancelled", logger.String("jobID", t.JobID), logger.String("reason", rec.Message))
			return nil
		}
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "full_score")
		return fmt.Errorf("full score for job %s: %w", t.JobID, err)
	}

	if _, err := w.store.Complete(storeCtx, t.JobID, res, w.now()); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	metrics.RecordJobFinished(string(job.Completed))
	metrics.RecordPrediction(metrics.PathFull, float64(time.Since(start).Milliseconds()))
	w.logger.Debug(ctx, "job completed", logger.String("jobID", t.JobID), logger.Duration("took", time.Since(start)))

	return nil
}

// score runs FullScore and converts a panic into an error so one faulty job
// cannot take down the worker.
func (w *InMemoryWorker) score(ctx context.Context, fs features.FeatureSet) (res scoring.FullResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerPanic()
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return w.scorer.FullScore(ctx, fs)
}

func (w *InMemoryWorker) failureRecord(ctx context.Context, err error) job.ErrorRecord {
	switch {
	case errors.Is(err, scoring.ErrCancelled) && ctx.Err() != nil:
		return job.ErrorRecord{Code: job.CodeCancelled, Message: msgShutdown}
	case errors.Is(err, scoring.ErrCancelled):
		return job.ErrorRecord{Code: job.CodeCancelled, Message: msgCancelled}
	default:
		return job.ErrorRecord{Code: job.CodeInternal, Message: msgInternal}
	}
}

// inflight maps running job ids to the cancel func of their context.
type inflight struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newInflight() *inflight {
	return &inflight{cancels: make(map[string]context.CancelFunc)}
}

func (f *inflight) add(id string, cancel context.CancelFunc) {
	f.mu.Lock()
	f.cancels[id] = cancel
	f.mu.Unlock()
}

func (f *inflight) remove(id string) {
	f.mu.Lock()
	delete(f.cancels, id)
	f.mu.Unlock()
}

func (f *inflight) cancel(id string) bool {
	f.mu.Lock()
	cancel, ok := f.cancels[id]
	f.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (f *inflight) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancels)
}

// Pool manages multiple workers sharing one queue and one cancel registry.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	store    Store
	inflight *inflight

	started atomic.Bool
	cancel  context.CancelFunc
	now     func() time.Time
	logger  logger.Logger
}

// NewPool creates a new worker pool. workerCount < 1 means one worker per CPU.
func NewPool(workerCount int, queue Queue, scorer Scorer, store Store, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		store:    store,
		inflight: newInflight(),
		now:      time.Now,
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(queue, scorer, store, wopts...)
		w.inflight = pool.inflight
		pool.now = w.now
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool. Cancelling ctx cancels every
// running job.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.started.Store(true)
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Running returns the number of jobs currently held by a worker.
func (p *Pool) Running() int {
	return p.inflight.len()
}

// Cancel cancels the context of a running job. It reports false when no
// worker holds the job.
func (p *Pool) Cancel(jobID string) bool {
	return p.inflight.cancel(jobID)
}

// Shutdown stops accepting work, cancels running jobs, waits for workers
// and fails whatever is still queued.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	if p.cancel != nil {
		p.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	if p.started.Load() {
		var errs []error
		for i, worker := range p.workers {
			if err := worker.Shutdown(shutdownCtx); err != nil {
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
	}

	p.drain(shutdownCtx)
	return nil
}

// drain marks queued tasks as cancelled so no job is left pending forever.
func (p *Pool) drain(ctx context.Context) {
	storeCtx := context.WithoutCancel(ctx)
	tasks := p.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			rec := job.ErrorRecord{Code: job.CodeCancelled, Message: msgShutdown}
			if _, err := p.store.Fail(storeCtx, t.JobID, rec, p.now()); err == nil {
				metrics.RecordJobFinished(string(job.Failed))
			}
		}
	}
}
