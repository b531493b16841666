package async

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RunFunc performs one pipeline pass.
type RunFunc func(ctx context.Context, job Job) error

// RunQueue runs jobs one at a time on a single worker. At most one job waits
// behind the running one; further jobs submitted meanwhile are coalesced into it,
// since a single pass picks up every document present when it starts.
type RunQueue struct {
	run     RunFunc
	logger  *slog.Logger
	timeout time.Duration
	ctx     context.Context

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu        sync.Mutex
	closed    bool
	coalesced int
	runs      int
}

var _ Queue = (*RunQueue)(nil)

type Option func(*RunQueue)

func WithRunTimeout(d time.Duration) Option {
	return func(q *RunQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithBaseContext sets the parent of every run's context; cancelling it interrupts the running pass.
func WithBaseContext(ctx context.Context) Option {
	return func(q *RunQueue) {
		if ctx != nil {
			q.ctx = ctx
		}
	}
}

func NewRunQueue(run RunFunc, logger *slog.Logger, opts ...Option) *RunQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &RunQueue{
		run:     run,
		logger:  logger,
		timeout: 30 * time.Minute,
		ctx:     context.Background(),
		ch:      make(chan Job, 1),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *RunQueue) start() {
	q.once.Do(func() {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.logger.Info("run worker started")

			for job := range q.ch {
				ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
				start := time.Now()
				err := q.run(ctx, job)
				cancel()

				q.mu.Lock()
				q.runs++
				q.mu.Unlock()

				if err != nil {
					q.logger.Error("run failed", "reason", job.Reason, "path", job.Path, "duration", time.Since(start), "error", err)
				} else {
					q.logger.Info("run finished", "reason", job.Reason, "path", job.Path, "duration", time.Since(start))
				}
			}

			q.logger.Info("run worker stopped")
		}()
	})
}

// Enqueue never blocks; a job arriving while another is pending is coalesced into it.
func (q *RunQueue) Enqueue(_ context.Context, job Job) error {
	q.TryEnqueue(job)
	return nil
}

// TryEnqueue submits job and reports whether it was queued (false: coalesced or shut down).
func (q *RunQueue) TryEnqueue(job Job) bool {
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "reason", job.Reason)
		return false
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued run", "reason", job.Reason, "path", job.Path)
		return true
	default:
		q.coalesced++
		q.logger.Debug("run already pending, coalesced", "reason", job.Reason, "path", job.Path)
		return false
	}
}

// Stats returns how many runs completed and how many jobs were coalesced.
func (q *RunQueue) Stats() (runs, coalesced int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runs, q.coalesced
}

func (q *RunQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
