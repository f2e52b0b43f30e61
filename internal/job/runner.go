package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

var (
	// ErrQueueFull is returned when the runner's backlog is at capacity.
	ErrQueueFull = errors.New("job queue full")
	// ErrRunnerClosed is returned once the runner has started shutting down.
	ErrRunnerClosed = errors.New("job runner is shutting down")
	// ErrAlreadyDispatched is returned when an id is already queued or running.
	ErrAlreadyDispatched = errors.New("job already dispatched")
)

// Task is one unit of background work. ctx is cancelled if the runner is
// forced to stop before the task finishes.
type Task func(ctx context.Context)

type queuedTask struct {
	id string
	fn Task
}

// RunnerConfig sizes a Runner. Zero values use defaults.
type RunnerConfig struct {
	Workers   int
	QueueSize int
}

// RunnerStats is a snapshot of runner counters.
type RunnerStats struct {
	Queued    int
	Running   int64
	Completed int64
	Rejected  int64
}

// Runner executes tasks on a fixed pool of goroutines fed by a bounded
// queue. Each task is keyed by job id and an id can be held by at most one
// queued or running task at a time.
type Runner struct {
	queue  chan queuedTask
	logger *slog.Logger

	mu       sync.Mutex
	reserved map[string]struct{}

	running   atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown chan struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewRunner starts the worker pool.
func NewRunner(cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		queue:    make(chan queuedTask, cfg.QueueSize),
		logger:   logger.With("component", "runner"),
		reserved: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}

	r.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go r.worker()
	}
	r.logger.Info("Runner started", "workers", cfg.Workers, "queue", cfg.QueueSize)
	return r
}

// Submit queues fn under id without blocking.
func (r *Runner) Submit(id string, fn Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		r.rejected.Add(1)
		return ErrRunnerClosed
	}
	if _, ok := r.reserved[id]; ok {
		return ErrAlreadyDispatched
	}

	select {
	case r.queue <- queuedTask{id: id, fn: fn}:
		r.reserved[id] = struct{}{}
		return nil
	default:
		r.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stats returns current counters.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Queued:    len(r.queue),
		Running:   r.running.Load(),
		Completed: r.completed.Load(),
		Rejected:  r.rejected.Load(),
	}
}

// Close stops intake and waits for queued and running tasks to finish.
// When ctx expires first, task contexts are cancelled and Close waits for
// the workers to return before reporting ctx's error.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed.Swap(true) {
		r.mu.Unlock()
		return nil
	}
	close(r.shutdown)
	r.mu.Unlock()
	r.logger.Info("Runner shutting down", "queued", len(r.queue), "running", r.running.Load())

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		r.logger.Info("Runner shutdown complete", "completed", r.completed.Load())
		return nil
	case <-ctx.Done():
		r.logger.Warn("Runner shutdown timed out, cancelling tasks", "running", r.running.Load())
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		select {
		case t := <-r.queue:
			r.run(t)
		case <-r.shutdown:
			for {
				select {
				case t := <-r.queue:
					r.run(t)
				default:
					return
				}
			}
		}
	}
}

func (r *Runner) run(t queuedTask) {
	r.running.Add(1)
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("Task panicked", "job_id", t.id, "panic", fmt.Sprint(v), "stack", string(debug.Stack()))
		}
		r.running.Add(-1)
		r.completed.Add(1)
		r.release(t.id)
	}()
	t.fn(r.ctx)
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.reserved, id)
	r.mu.Unlock()
}
