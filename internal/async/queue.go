// Package async serializes pipeline runs behind a single worker.
package async

import (
	"context"
	"time"
)

// Job is one request for a pipeline pass.
type Job struct {
	Reason      string // "tick" | "fsnotify" | "startup"
	Path        string // file that triggered the job, if any
	SubmittedAt time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
