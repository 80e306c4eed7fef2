package service

import (
	"errors"

	"github.com/okian/medrisk/internal/adapters/repository"
)

// Sentinel kinds for service errors.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("job queue is full")
	ErrNotFound     = repository.ErrNotFound
)
