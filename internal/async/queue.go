package async

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateKey is returned when a job with the same key is still queued or running.
	ErrDuplicateKey = errors.New("async: job with this key already in flight")
	// ErrClosed is returned by Enqueue after Shutdown.
	ErrClosed = errors.New("async: queue is shut down")
)

// Job is one keyed unit of work. At most one job per Key is in flight.
type Job struct {
	Key         string
	Run         func(ctx context.Context) error
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Wait blocks until every accepted job has finished or ctx is done.
	Wait(ctx context.Context) error
	Shutdown(ctx context.Context)
}
