package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"scholarsource/internal/testutil"
	"scholarsource/pkg/cloudevent"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	return Config{
		BufferSize:      100,
		Workers:         1,
		HTTPTimeout:     2 * time.Second,
		RetryInitial:    time.Millisecond,
		BreakerCooldown: 50 * time.Millisecond,
	}
}

func newEvent(dest, id string) *Event {
	return &Event{
		Payload:     cloudevent.New("scholarsource.job.completed", "/scholarsource", "job-1", id, map[string]any{"job_id": "job-1"}),
		Destination: dest,
	}
}

func closeDispatcher(t *testing.T, d *Memory) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestMemory_Dispatch(t *testing.T) {
	t.Parallel()
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
	}))
	defer server.Close()

	d := NewMemory(fastConfig(), quietLogger(), nil)
	defer closeDispatcher(t, d)

	if err := d.Dispatch(newEvent(server.URL, "evt-1")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 }, testutil.WithTimeout(5*time.Second))
	if received.Load() != 1 {
		t.Errorf("expected 1 delivery, got %d", received.Load())
	}
}

func TestMemory_BufferFull(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.BufferSize = 1
	d := NewMemory(cfg, quietLogger(), nil)

	var full int
	for i := range 5 {
		if err := d.Dispatch(newEvent(server.URL, string(rune('a'+i)))); err == ErrBufferFull {
			full++
		}
	}
	close(release)

	if full == 0 {
		t.Error("expected some events to be rejected with ErrBufferFull")
	}
	if d.Stats().Dropped != int64(full) {
		t.Errorf("dropped = %d, want %d", d.Stats().Dropped, full)
	}
	closeDispatcher(t, d)
}

func TestMemory_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	d := NewMemory(fastConfig(), quietLogger(), nil)
	defer closeDispatcher(t, d)
	_ = d.Dispatch(newEvent(server.URL, "evt-1"))

	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 }, testutil.WithTimeout(5*time.Second))
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestMemory_NoRetryOnClientError(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := NewMemory(fastConfig(), quietLogger(), nil)
	defer closeDispatcher(t, d)
	_ = d.Dispatch(newEvent(server.URL, "evt-1"))

	testutil.MustWaitFor(t, func() bool { return d.Stats().Failed == 1 }, testutil.WithTimeout(5*time.Second))
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestMemory_CircuitOpensAndRequeues(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.MaxAttempts = 1
	cfg.BreakerThreshold = 2
	cfg.MaxRequeues = 1
	d := NewMemory(cfg, quietLogger(), nil)
	defer closeDispatcher(t, d)

	for i := range 6 {
		_ = d.Dispatch(newEvent(server.URL, string(rune('a'+i))))
	}

	testutil.MustWaitFor(t, func() bool { return d.Stats().Requeued > 0 }, testutil.WithTimeout(5*time.Second))
}

func TestMemory_SignsWhenKeySet(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var sig, ceType string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		sig = r.Header.Get(cloudevent.SignatureHeader)
		ceType = r.Header.Get("Ce-Type")
		body, _ = io.ReadAll(r.Body)
	}))
	defer server.Close()

	d := NewMemory(fastConfig(), quietLogger(), nil)
	defer closeDispatcher(t, d)

	event := newEvent(server.URL, "evt-1")
	event.SigningKey = "secret-key"
	_ = d.Dispatch(event)

	testutil.MustWaitFor(t, func() bool { return d.Stats().Delivered == 1 }, testutil.WithTimeout(5*time.Second))

	mu.Lock()
	defer mu.Unlock()
	if ceType != "scholarsource.job.completed" {
		t.Errorf("Ce-Type = %q", ceType)
	}
	if !cloudevent.Verify(body, "secret-key", sig) {
		t.Errorf("signature %q did not verify", sig)
	}
}

func TestMemory_CloseDrainsQueue(t *testing.T) {
	t.Parallel()
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
	}))
	defer server.Close()

	cfg := fastConfig()
	cfg.Workers = 2
	d := NewMemory(cfg, quietLogger(), nil)
	for i := range 10 {
		_ = d.Dispatch(newEvent(server.URL, string(rune('a'+i))))
	}

	closeDispatcher(t, d)

	if received.Load() != 10 {
		t.Errorf("expected 10 deliveries, got %d", received.Load())
	}
	if err := d.Dispatch(newEvent(server.URL, "late")); err != ErrClosed {
		t.Errorf("Dispatch after Close = %v, want ErrClosed", err)
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rawURL string
		want   string
	}{
		{"http://localhost:8080/webhook", "localhost:8080"},
		{"https://hooks.example.com/scholarsource?k=1", "hooks.example.com"},
		{"://invalid", "://invalid"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := hostOf(tt.rawURL); got != tt.want {
			t.Errorf("hostOf(%q) = %q, want %q", tt.rawURL, got, tt.want)
		}
	}
}
