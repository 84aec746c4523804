package async

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// KeyedPool runs jobs on a fixed set of workers. A key already queued or
// running is rejected, so one user never has two cycles in flight.
type KeyedPool struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan envelope
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	closed  bool
	pending map[string]struct{}
	drained chan struct{}
}

type envelope struct {
	ctx context.Context
	job Job
}

var _ Queue = (*KeyedPool)(nil)

type Option func(*KeyedPool)

func WithWorkers(n int) Option {
	return func(q *KeyedPool) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *KeyedPool) {
		if n > 0 {
			q.ch = make(chan envelope, n)
		}
	}
}
func WithJobTimeout(d time.Duration) Option {
	return func(q *KeyedPool) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewKeyedPool(logger *slog.Logger, opts ...Option) *KeyedPool {
	if logger == nil {
		logger = slog.Default()
	}
	q := &KeyedPool{
		logger:  logger,
		workers: 1,
		ch:      make(chan envelope, 64),
		pending: make(map[string]struct{}),
		drained: make(chan struct{}),
	}
	close(q.drained)
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *KeyedPool) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for env := range q.ch {
					q.runJob(workerID, env)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *KeyedPool) runJob(workerID int, env envelope) {
	key := env.job.Key
	defer q.finish(key)

	if err := env.ctx.Err(); err != nil {
		q.logger.Warn("job dropped, context done", "worker_id", workerID, "key", key, "error", err)
		return
	}

	ctx, cancel := env.ctx, context.CancelFunc(func() {})
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(env.ctx, q.timeout)
	}
	defer cancel()

	start := time.Now()
	if err := safeRun(ctx, env.job.Run); err != nil {
		q.logger.Error("job failed", "worker_id", workerID, "key", key, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		return
	}
	q.logger.Debug("job finished", "worker_id", workerID, "key", key,
		"elapsed_ms", time.Since(start).Milliseconds(), "queued_ms", start.Sub(env.job.SubmittedAt).Milliseconds())
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

func (q *KeyedPool) finish(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, key)
	if len(q.pending) == 0 {
		close(q.drained)
	}
}

// Enqueue blocks while the buffer is full, until ctx is done. ctx also
// becomes the parent of the job's run context.
func (q *KeyedPool) Enqueue(ctx context.Context, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("async: job %q has no Run func", job.Key)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if _, ok := q.pending[job.Key]; ok {
		q.mu.Unlock()
		q.logger.Warn("job already in flight", "key", job.Key)
		return ErrDuplicateKey
	}
	if len(q.pending) == 0 {
		q.drained = make(chan struct{})
	}
	q.pending[job.Key] = struct{}{}
	env := envelope{ctx: ctx, job: job}

	select {
	case q.ch <- env:
		q.mu.Unlock()
		return nil
	default:
	}
	q.mu.Unlock()

	q.logger.Debug("queue full, applying backpressure", "key", job.Key)
	select {
	case q.ch <- env:
		return nil
	case <-ctx.Done():
		q.finish(job.Key)
		return ctx.Err()
	}
}

func (q *KeyedPool) Wait(ctx context.Context) error {
	q.mu.Lock()
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *KeyedPool) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// Blocked senders hold no lock; wait for them to land before closing the channel.
	if err := q.Wait(ctx); err != nil {
		q.logger.Warn("shutdown interrupted by context")
		return
	}
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
