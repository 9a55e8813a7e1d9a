// Package queue runs background jobs on a pool of workers. Delivery is at
// least once and unordered: a retried job goes to the back of the queue and
// two jobs enqueued back to back may run in either order or in parallel.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-video-recorder/internal/core/domain"
	"go-video-recorder/internal/core/ports"
)

// Handler executes jobs taken from the queue.
type Handler interface {
	Handle(ctx context.Context, job domain.Job) error
	// Abandon is called once a job fails with a non-retryable error or
	// runs out of attempts.
	Abandon(ctx context.Context, job domain.Job, err error)
}

type Config struct {
	Workers       int
	Capacity      int
	MaxAttempts   int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Queue is an in-process worker pool implementing ports.JobQueue.
type Queue struct {
	cfg      Config
	handler  Handler
	observer ports.PipelineObserver
	logger   *slog.Logger

	jobs    chan *envelope
	quit    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	pending sync.WaitGroup
	retries sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type envelope struct {
	job    domain.Job
	ticket *ticket
}

// New starts cfg.Workers workers.
func New(cfg Config, handler Handler, observer ports.PipelineObserver, logger *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMaxDelay < cfg.RetryBase {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if observer == nil {
		observer = ports.NopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:      cfg,
		handler:  handler,
		observer: observer,
		logger:   logger,
		jobs:     make(chan *envelope, cfg.Capacity),
		quit:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		q.workers.Add(1)
		go q.work(i)
	}
	return q
}

// Enqueue schedules job and returns a ticket that resolves when the job and
// every job chained through Next have finished.
func (q *Queue) Enqueue(ctx context.Context, job domain.Job) (ports.Ticket, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, domain.ErrQueueClosed
	}

	prepare(&job)
	t := newTicket()
	env := &envelope{job: job, ticket: t}

	q.pending.Add(1)
	select {
	case q.jobs <- env:
	case <-ctx.Done():
		q.pending.Done()
		return nil, ctx.Err()
	}
	q.observer.JobEnqueued(job.Kind)
	return t, nil
}

// Close stops accepting jobs and waits for queued work, retries and chained
// jobs included, to drain. When ctx expires first, running handlers are
// cancelled and anything still queued resolves with ErrQueueClosed.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}

	q.cancel()
	close(q.quit)
	q.workers.Wait()
	q.retries.Wait()

	for {
		select {
		case env := <-q.jobs:
			env.ticket.resolve(domain.ErrQueueClosed)
			q.pending.Done()
		default:
			return err
		}
	}
}

func (q *Queue) work(id int) {
	defer q.workers.Done()
	for {
		select {
		case <-q.quit:
			return
		case env := <-q.jobs:
			q.run(id, env)
		}
	}
}

func (q *Queue) run(worker int, env *envelope) {
	defer q.pending.Done()

	job := env.job
	start := time.Now()
	err := q.safeHandle(job)
	elapsed := time.Since(start).Seconds()

	if err == nil {
		q.observer.JobFinished(job.Kind, elapsed, nil)
		q.logger.Debug("Job done",
			slog.Int("worker", worker),
			slog.String("job", string(job.Kind)),
			slog.String("session_id", job.SessionID),
			slog.Int("attempt", job.Attempt),
		)
		if job.Next == nil {
			env.ticket.resolve(nil)
			return
		}
		next := *job.Next
		prepare(&next)
		q.observer.JobEnqueued(next.Kind)
		q.requeue(&envelope{job: next, ticket: env.ticket}, 0)
		return
	}

	if domain.IsRetryable(err) && job.Attempt < q.cfg.MaxAttempts && q.ctx.Err() == nil {
		delay := q.backoff(job.Attempt)
		q.observer.JobRetried(job.Kind)
		q.logger.Warn("Job failed, retrying",
			slog.String("job", string(job.Kind)),
			slog.String("session_id", job.SessionID),
			slog.Int("attempt", job.Attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		job.Attempt++
		q.requeue(&envelope{job: job, ticket: env.ticket}, delay)
		return
	}

	q.observer.JobFinished(job.Kind, elapsed, err)
	q.handler.Abandon(context.WithoutCancel(q.ctx), job, err)
	env.ticket.resolve(err)
}

// requeue puts env back on the queue after delay without blocking the
// calling worker.
func (q *Queue) requeue(env *envelope, delay time.Duration) {
	q.pending.Add(1)
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-q.quit:
				timer.Stop()
				env.ticket.resolve(domain.ErrQueueClosed)
				q.pending.Done()
				return
			}
		}
		select {
		case <-q.quit:
			env.ticket.resolve(domain.ErrQueueClosed)
			q.pending.Done()
			return
		default:
		}
		select {
		case q.jobs <- env:
		case <-q.quit:
			env.ticket.resolve(domain.ErrQueueClosed)
			q.pending.Done()
		}
	}()
}

func (q *Queue) safeHandle(job domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Kind, r)
		}
	}()
	return q.handler.Handle(q.ctx, job)
}

// backoff doubles the delay per attempt, capped at RetryMaxDelay.
func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.cfg.RetryMaxDelay {
			return q.cfg.RetryMaxDelay
		}
	}
	return delay
}

func prepare(job *domain.Job) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	job.EnqueuedAt = time.Now()
}

type ticket struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newTicket() *ticket {
	return &ticket{done: make(chan struct{})}
}

func (t *ticket) resolve(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *ticket) Done() <-chan struct{} { return t.done }

// Err returns the error that ended the chain, or nil before Done is closed.
func (t *ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
