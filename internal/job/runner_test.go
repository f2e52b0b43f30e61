package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"scholarsource/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func closeRunner(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestRunner_RunsTasks(t *testing.T) {
	t.Parallel()
	r := NewRunner(RunnerConfig{Workers: 2, QueueSize: 10}, quietLogger())
	defer closeRunner(t, r)

	var ran atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Submit(id, func(context.Context) { ran.Add(1) }); err != nil {
			t.Fatalf("Submit(%s) error = %v", id, err)
		}
	}
	testutil.MustWaitFor(t, func() bool { return ran.Load() == 3 })
	testutil.MustWaitFor(t, func() bool { return r.Stats().Completed == 3 })
}

func TestRunner_SubmitDoesNotBlock(t *testing.T) {
	t.Parallel()
	r := NewRunner(RunnerConfig{Workers: 1, QueueSize: 1}, quietLogger())
	release := make(chan struct{})
	started := make(chan struct{})

	if err := r.Submit("busy", func(context.Context) { close(started); <-release }); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := r.Submit("queued", func(context.Context) {}); err != nil {
		t.Fatal(err)
	}

	begin := time.Now()
	err := r.Submit("overflow", func(context.Context) {})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit() error = %v, want ErrQueueFull", err)
	}
	if time.Since(begin) > 100*time.Millisecond {
		t.Error("Submit blocked on a full queue")
	}
	if r.Stats().Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", r.Stats().Rejected)
	}

	close(release)
	closeRunner(t, r)
}

func TestRunner_RejectsDuplicateID(t *testing.T) {
	t.Parallel()
	r := NewRunner(RunnerConfig{Workers: 1, QueueSize: 4}, quietLogger())
	release := make(chan struct{})

	if err := r.Submit("j1", func(context.Context) { <-release }); err != nil {
		t.Fatal(err)
	}
	if err := r.Submit("j1", func(context.Context) {}); !errors.Is(err, ErrAlreadyDispatched) {
		t.Errorf("duplicate Submit() error = %v, want ErrAlreadyDispatched", err)
	}
	close(release)

	// The id is released once its task returns.
	testutil.MustWaitFor(t, func() bool { return r.Stats().Completed == 1 })
	if err := r.Submit("j1", func(context.Context) {}); err != nil {
		t.Errorf("Submit() after completion error = %v", err)
	}
	closeRunner(t, r)
}

func TestRunner_RecoversPanics(t *testing.T) {
	t.Parallel()
	r := NewRunner(RunnerConfig{Workers: 1, QueueSize: 4}, quietLogger())
	defer closeRunner(t, r)

	var after atomic.Bool
	_ = r.Submit("boom", func(context.Context) { panic("engine exploded") })
	_ = r.Submit("next", func(context.Context) { after.Store(true) })

	testutil.MustWaitFor(t, after.Load)
}

func TestRunner_CloseDrainsQueue(t *testing.T) {
	t.Parallel()
	r := NewRunner(RunnerConfig{Workers: 1, QueueSize: 10}, quietLogger())

	var ran atomic.Int32
	for i := range 5 {
		_ = r.Submit(string(rune('a'+i)), func(context.Context) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
		})
	}
	closeRunner(t, r)

	if ran.Load() != 5 {
		t.Errorf("ran = %d, want 5", ran.Load())
	}
	if err := r.Submit("late", func(context.Context) {}); !errors.Is(err, ErrRunnerClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrRunnerClosed", err)
	}
}

func TestRunner_CloseTimeoutCancelsTasks(t *testing.T) {
	t.Parallel()
	r := NewRunner(RunnerConfig{Workers: 1, QueueSize: 1}, quietLogger())

	var cancelled atomic.Bool
	started := make(chan struct{})
	_ = r.Submit("slow", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close() error = %v, want DeadlineExceeded", err)
	}
	if !cancelled.Load() {
		t.Error("task context was not cancelled")
	}
}
