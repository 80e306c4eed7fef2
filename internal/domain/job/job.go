// Package job models one tracked full-prediction request and its lifecycle.
package job

import (
	"time"

	"github.com/okian/medrisk/internal/domain/features"
	"github.com/okian/medrisk/internal/domain/scoring"
)

// State is the lifecycle state of a Job.
type State string

// Job states. Transitions only move forward:
// Pending -> Running -> {Completed, Failed}, and Pending -> Failed on cancel.
const (
	Pending   State = "pending"
	Running   State = "running"
	Completed State = "completed"
	Failed    State = "failed"
)

// Terminal reports whether s is Completed or Failed.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	switch s {
	case Pending:
		return next == Running || next == Failed
	case Running:
		return next == Completed || next == Failed
	}
	return false
}

// Error codes stored on failed jobs.
const (
	CodeInternal  = "internal_error"
	CodeCancelled = "cancelled"
)

// ErrorRecord is the caller-visible failure description. It never carries
// raw internal error text.
type ErrorRecord struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is a snapshot of one full-prediction request. Values returned by the
// store are copies; mutating them has no effect on stored state.
type Job struct {
	ID          string
	State       State
	Features    features.FeatureSet
	Preview     scoring.Result
	Result      *scoring.FullResult
	Error       *ErrorRecord
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a pending job.
func New(id string, fs features.FeatureSet, preview scoring.Result, now time.Time) Job {
	return Job{
		ID:        id,
		State:     Pending,
		Features:  fs,
		Preview:   preview,
		CreatedAt: now,
	}
}

// Clone returns a deep copy of j.
func (j Job) Clone() Job {
	out := j
	if j.Result != nil {
		r := *j.Result
		r.FeatureImportance = append(r.FeatureImportance[:0:0], j.Result.FeatureImportance...)
		out.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}

// Task is the unit of work handed to workers.
type Task struct {
	JobID    string
	Features features.FeatureSet
	Enqueued time.Time
}
