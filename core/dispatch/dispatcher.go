// Package dispatch runs background jobs on a bounded worker pool with retries.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/synobot/core/logger"
	"github.com/m3rciful/synobot/core/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("dispatch: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("dispatch: queue full")
)

// Options controls the behaviour of a Dispatcher.
type Options struct {
	// Name is used as the log component.
	Name         string
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// Retryable decides whether a failed attempt is retried. Defaults to netutil.ShouldRetry.
	Retryable func(error) bool
}

// Job is one unit of work. It receives a context bounded by MaxDuration and
// must be safe to call again after a failure when retries are enabled.
type Job func(ctx context.Context) error

type job struct {
	ctx    context.Context
	action string
	run    Job
}

// Dispatcher executes jobs asynchronously with retries.
type Dispatcher struct {
	opts Options

	mu     sync.RWMutex // guards closed against concurrent Enqueue/Close
	closed bool
	jobs   chan job

	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64
	done atomic.Uint64
}

// New starts a dispatcher with sane defaults if options are zeroed.
func New(opts Options) *Dispatcher {
	if opts.Name == "" {
		opts.Name = "dispatch"
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 15 * time.Second
	}
	if opts.Retryable == nil {
		opts.Retryable = netutil.ShouldRetry
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules run without blocking. The job keeps the correlation values
// of ctx but not its cancellation.
func (d *Dispatcher) Enqueue(ctx context.Context, action string, run Job) error {
	if run == nil {
		return errors.New("dispatch: nil job")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}

	select {
	case d.jobs <- job{ctx: logger.Detach(ctx), action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// DoneCount returns the number of jobs that succeeded.
func (d *Dispatcher) DoneCount() uint64 {
	return d.done.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

func (d *Dispatcher) handleJob(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var lastErr error

attemptLoop:
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		err := d.runSafe(ctx, j)
		if err == nil {
			d.done.Add(1)
			logger.Debug(ctx, d.opts.Name, "job.done",
				append(jobAttrs(j),
					slog.String("status", "ok"),
					slog.Int("attempt", attempt),
					slog.Duration("duration", logger.Took(start)),
				)...,
			)
			return
		}
		lastErr = err
		if !d.opts.Retryable(err) || attempt == attempts {
			break
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		logger.Debug(ctx, d.opts.Name, "job.retry",
			append(jobAttrs(j),
				slog.String("status", "retry"),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("err", netutil.RedactError(err)),
			)...,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = ctx.Err()
			break attemptLoop
		case <-timer.C:
		}
	}

	d.errs.Add(1)
	logger.Error(ctx, d.opts.Name, "job.fail",
		append(jobAttrs(j),
			slog.String("status", "fail"),
			slog.String("err", netutil.RedactError(lastErr)),
			slog.String("err_kind", netutil.ClassifyError(lastErr)),
			slog.Int("attempts", attempts),
			slog.Duration("duration", logger.Took(start)),
		)...,
	)
}

func (d *Dispatcher) runSafe(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return j.run(ctx)
}

func jobAttrs(j job) []slog.Attr {
	return []slog.Attr{slog.String("action", j.action)}
}

// PanicError wraps a value recovered from a panicking job.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "dispatch: job panicked"
}
