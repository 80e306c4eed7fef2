package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/medrisk/internal/domain/job"
	"github.com/okian/medrisk/internal/domain/scoring"
	"github.com/okian/medrisk/pkg/metrics"
)

// Eviction reasons reported to metrics.
const (
	evictExpired  = "expired"
	evictCapacity = "capacity"
)

// MemoryStore is a mutex-guarded, process-local Store. A background
// goroutine sweeps terminal jobs on a fixed interval.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job

	retention     time.Duration
	maxJobs       int
	sweepInterval time.Duration
	now           func() time.Time

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewMemoryStore constructs a job store with configuration options and
// starts its sweeper. The sweeper stops when ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		jobs:          make(map[string]*job.Job),
		retention:     15 * time.Minute,
		maxJobs:       100000,
		sweepInterval: 30 * time.Second,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	metrics.UpdateJobStoreSize(0)
	s.startSweeper(ctx)

	return s
}

func (s *MemoryStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep(ctx, s.now())
			}
		}
	}()
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Insert implements Store.Insert.
func (s *MemoryStore) Insert(_ context.Context, j job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, j.ID)
	}
	c := j.Clone()
	s.jobs[j.ID] = &c
	metrics.UpdateJobStoreSize(len(s.jobs))
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j.Clone(), nil
}

// MarkRunning implements Store.MarkRunning.
func (s *MemoryStore) MarkRunning(_ context.Context, id string, at time.Time) (job.Job, error) {
	return s.transition(id, job.Running, func(j *job.Job) {
		j.StartedAt = at
	})
}

// Complete implements Store.Complete.
func (s *MemoryStore) Complete(_ context.Context, id string, res scoring.FullResult, at time.Time) (job.Job, error) {
	return s.transition(id, job.Completed, func(j *job.Job) {
		r := res
		r.FeatureImportance = slices.Clone(res.FeatureImportance)
		j.Result = &r
		j.CompletedAt = at
	})
}

// Fail implements Store.Fail.
func (s *MemoryStore) Fail(_ context.Context, id string, rec job.ErrorRecord, at time.Time) (job.Job, error) {
	return s.transition(id, job.Failed, func(j *job.Job) {
		e := rec
		j.Error = &e
		j.CompletedAt = at
	})
}

// transition applies a single-key atomic state change. The returned job is
// the current state on ErrInvalidTransition.
func (s *MemoryStore) transition(id string, next job.State, apply func(*job.Job)) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !j.State.CanTransition(next) {
		return j.Clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, next)
	}
	j.State = next
	apply(j)
	return j.Clone(), nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.jobs, id)
	metrics.UpdateJobStoreSize(len(s.jobs))
	return nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// CountByState implements Store.CountByState.
func (s *MemoryStore) CountByState(_ context.Context) map[job.State]int {
	out := map[job.State]int{
		job.Pending:   0,
		job.Running:   0,
		job.Completed: 0,
		job.Failed:    0,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		out[j.State]++
	}
	return out
}

// Sweep implements Store.Sweep. Expired terminal jobs go first, then the
// oldest terminal jobs until the store fits maxJobs.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var terminal []*job.Job
	expired := 0
	for id, j := range s.jobs {
		if !j.State.Terminal() {
			continue
		}
		if s.retention > 0 && now.Sub(j.CompletedAt) >= s.retention {
			delete(s.jobs, id)
			expired++
			continue
		}
		terminal = append(terminal, j)
	}

	evicted := 0
	if excess := len(s.jobs) - s.maxJobs; s.maxJobs > 0 && excess > 0 {
		slices.SortFunc(terminal, func(a, b *job.Job) int {
			return a.CompletedAt.Compare(b.CompletedAt)
		})
		for _, j := range terminal[:min(excess, len(terminal))] {
			delete(s.jobs, j.ID)
			evicted++
		}
	}

	if expired > 0 {
		metrics.RecordJobEviction(evictExpired, expired)
	}
	if evicted > 0 {
		metrics.RecordJobEviction(evictCapacity, evicted)
	}
	metrics.UpdateJobStoreSize(len(s.jobs))

	return expired + evicted
}
