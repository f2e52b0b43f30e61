// Package dispatcher delivers CloudEvents to webhook endpoints
// asynchronously, with buffering, retry and per-host circuit breaking.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"scholarsource/pkg/cloudevent"
)

var (
	// ErrBufferFull is returned when the event cannot be queued.
	ErrBufferFull = errors.New("dispatcher buffer full, event dropped")
	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("dispatcher is closed")
)

// Dispatcher queues events for delivery without blocking the caller.
type Dispatcher interface {
	Dispatch(event *Event) error
	Stats() Stats
	// Close stops intake and drains the queue until ctx is done.
	Close(ctx context.Context) error
}

// Event is a CloudEvent bound for one destination.
type Event struct {
	Payload     *cloudevent.CloudEvent
	Destination string
	SigningKey  string // empty sends unsigned

	requeues int
}

// Stats holds dispatcher counters.
type Stats struct {
	QueueDepth   int
	Queued       int64
	Delivered    int64
	Failed       int64
	Dropped      int64
	Requeued     int64
	BreakersOpen int
}

// Config sizes the in-memory dispatcher. Zero values use defaults.
type Config struct {
	BufferSize  int
	Workers     int
	HTTPTimeout time.Duration
	UserAgent   string

	// Delivery tuning; tests shrink these.
	MaxAttempts      int
	RetryInitial     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	MaxRequeues      int
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "scholarsource-dispatcher"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 100 * time.Millisecond
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxRequeues <= 0 {
		c.MaxRequeues = 10
	}
	return c
}
