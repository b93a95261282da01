package async

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Pool runs jobs on a fixed number of workers fed by a bounded queue.
// Failures and panics are reported on Errors instead of crashing the process.
type Pool struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration
	base    context.Context

	ch   chan Job
	errs chan JobError
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

var _ Queue = (*Pool)(nil)

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan Job, n)
		}
	}
}

// WithJobTimeout bounds each job. Zero or negative leaves jobs unbounded.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

// WithErrorBuffer sizes the Errors channel. Reports beyond it are logged and dropped.
func WithErrorBuffer(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.errs = make(chan JobError, n)
		}
	}
}

// WithBaseContext sets the parent of every job context.
func WithBaseContext(ctx context.Context) Option {
	return func(p *Pool) {
		if ctx != nil {
			p.base = ctx
		}
	}
}

// NewPool starts the workers immediately.
func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		base:    context.Background(),
		ch:      make(chan Job, 64),
		errs:    make(chan JobError, 64),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("async.worker.started", "worker_id", workerID)
				for job := range p.ch {
					p.run(workerID, job)
				}
				p.logger.Debug("async.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (p *Pool) run(workerID int, job Job) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(p.base, p.timeout)
	} else {
		ctx, cancel = context.WithCancel(p.base)
	}
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("async.job.panic",
				"worker_id", workerID, "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			p.report(JobError{JobID: job.ID, Panic: r, Err: fmt.Errorf("panic: %v", r), At: time.Now()})
		}
	}()

	if err := job.Run(ctx); err != nil {
		p.logger.Warn("async.job.failed",
			"worker_id", workerID, "job_id", job.ID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		p.report(JobError{JobID: job.ID, Err: err, At: time.Now()})
		return
	}
	p.logger.Debug("async.job.done",
		"worker_id", workerID, "job_id", job.ID, "elapsed_ms", time.Since(start).Milliseconds())
}

func (p *Pool) report(e JobError) {
	select {
	case p.errs <- e:
	default:
		p.logger.Warn("async.errors.dropped", "job_id", e.JobID, "error", e.Error())
	}
}

// Submit queues job without blocking.
func (p *Pool) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("async: job %s has no Run func", job.ID)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.ch <- job:
		p.logger.Debug("async.job.queued", "job_id", job.ID, "depth", len(p.ch))
		return nil
	default:
		p.logger.Warn("async.queue.full", "job_id", job.ID, "capacity", cap(p.ch))
		return ErrQueueFull
	}
}

// Errors delivers job failures. It is closed once Shutdown has drained the workers.
func (p *Pool) Errors() <-chan JobError {
	return p.errs
}

// Depth is the number of queued jobs not yet picked up by a worker.
func (p *Pool) Depth() int {
	return len(p.ch)
}

// Capacity is the queue size.
func (p *Pool) Capacity() int {
	return cap(p.ch)
}

// Shutdown stops intake, lets workers finish queued jobs and waits for them or ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
		close(p.errs)
	}()

	select {
	case <-ctx.Done():
		p.logger.Warn("async.shutdown.interrupted", "pending", len(p.ch))
		return ctx.Err()
	case <-done:
		p.logger.Info("async.shutdown.complete")
		return nil
	}
}
