// Package job implements the ScholarSource job lifecycle: the record model
// and its state machine, input validation, the orchestrating Service that
// runs discovery in the background, and the status queries over it.
//
// Storage, discovery and notification are collaborators behind the
// interfaces in this file.
package job

import (
	"context"
	"time"
)

// Store persists job records. Put replaces the whole record keyed by ID.
// Get returns (nil, nil) when no record exists.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// Lister is implemented by stores that can enumerate records by status.
// It is used to recover jobs orphaned by a restart.
type Lister interface {
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Record, error)
}

// Engine runs resource discovery for one job. Discover may take minutes
// and must honor ctx cancellation.
type Engine interface {
	Name() string
	Discover(ctx context.Context, jobID string, in Inputs) (*Result, error)
}

// Notification is sent once a job completes.
type Notification struct {
	Recipient string
	Title     string
	Results   []Resource
	JobID     string
}

// Notifier delivers completion notifications. It reports whether delivery
// succeeded and must never panic or block indefinitely.
type Notifier interface {
	Notify(ctx context.Context, n Notification) bool
}

// MetricsRecorder receives lifecycle measurements. Optional.
type MetricsRecorder interface {
	RecordJobSubmitted(ctx context.Context)
	RecordJobRejected(ctx context.Context)
	RecordJobStarted(ctx context.Context, engine string)
	RecordJobFinished(ctx context.Context, engine, status string, durationSeconds float64)
	RecordNotification(ctx context.Context, success bool)
}

// EventPublisher receives lifecycle transitions. Optional.
type EventPublisher interface {
	Publish(ctx context.Context, rec *Record)
}

// Clock returns the current time. Overridden in tests.
type Clock func() time.Time
