// Package repository defines the job store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/okian/medrisk/internal/domain/job"
	"github.com/okian/medrisk/internal/domain/scoring"
)

// Store provides read/write access to tracked jobs. Every method returns
// copies; callers never observe later mutations through a returned Job.
type Store interface {
	// Insert stores a new pending job. Returns ErrDuplicate if the id exists.
	Insert(ctx context.Context, j job.Job) error

	// Get returns the job by id, or ErrNotFound.
	Get(ctx context.Context, id string) (job.Job, error)

	// MarkRunning moves a pending job to Running.
	MarkRunning(ctx context.Context, id string, at time.Time) (job.Job, error)

	// Complete moves a running job to Completed with its result.
	Complete(ctx context.Context, id string, res scoring.FullResult, at time.Time) (job.Job, error)

	// Fail moves a pending or running job to Failed.
	Fail(ctx context.Context, id string, rec job.ErrorRecord, at time.Time) (job.Job, error)

	// Delete removes a job regardless of state. Used to roll back a
	// submission that could not be enqueued.
	Delete(ctx context.Context, id string) error

	// Count returns the number of tracked jobs.
	Count(ctx context.Context) int

	// CountByState returns the number of tracked jobs per state.
	CountByState(ctx context.Context) map[job.State]int

	// Sweep evicts expired and excess terminal jobs and reports how many
	// were removed.
	Sweep(ctx context.Context, now time.Time) int
}
