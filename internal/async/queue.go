package async

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("async: queue full")
	// ErrQueueClosed is returned by Submit after Shutdown has started.
	ErrQueueClosed = errors.New("async: queue closed")
)

// Job is one unit of background work. ID is carried into logs and errors.
type Job struct {
	ID          string
	SubmittedAt time.Time
	Run         func(ctx context.Context) error
}

// JobError reports a job that returned an error or panicked.
type JobError struct {
	JobID string
	Err   error
	Panic any
	At    time.Time
}

func (e JobError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("job %s panicked: %v", e.JobID, e.Panic)
	}
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

func (e JobError) Unwrap() error { return e.Err }

type Queue interface {
	Submit(job Job) error
	Shutdown(ctx context.Context) error
}
