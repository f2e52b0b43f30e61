package notify

import (
	"context"
	"fmt"
	"log/slog"

	"scholarsource/internal/dispatcher"
	"scholarsource/internal/job"
)

// WebhookSink queues a completion CloudEvent on the dispatcher. A queued
// event counts as sent; delivery retries happen in the dispatcher.
type WebhookSink struct {
	dispatcher dispatcher.Dispatcher
	url        string
	key        string
}

func NewWebhookSink(d dispatcher.Dispatcher, url, signingKey string) *WebhookSink {
	return &WebhookSink{dispatcher: d, url: url, key: signingKey}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Send(_ context.Context, n job.Notification) error {
	if err := s.dispatcher.Dispatch(&dispatcher.Event{
		Payload:     job.NewNotificationEvent(n),
		Destination: s.url,
		SigningKey:  s.key,
	}); err != nil {
		return fmt.Errorf("queue webhook: %w", err)
	}
	return nil
}

// LifecyclePublisher forwards every job status change to the webhook as a
// CloudEvent. Dispatch failures are logged and otherwise ignored.
type LifecyclePublisher struct {
	dispatcher dispatcher.Dispatcher
	url        string
	key        string
	logger     *slog.Logger
}

func NewLifecyclePublisher(d dispatcher.Dispatcher, url, signingKey string, logger *slog.Logger) *LifecyclePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecyclePublisher{dispatcher: d, url: url, key: signingKey, logger: logger.With("component", "events")}
}

// Publish implements job.EventPublisher.
func (p *LifecyclePublisher) Publish(_ context.Context, rec *job.Record) {
	ev, ok := job.NewLifecycleEvent(rec)
	if !ok {
		return
	}
	if err := p.dispatcher.Dispatch(&dispatcher.Event{Payload: ev, Destination: p.url, SigningKey: p.key}); err != nil {
		p.logger.Warn("Lifecycle event dropped", "job_id", rec.ID, "type", ev.Type, "error", err)
	}
}

var _ job.EventPublisher = (*LifecyclePublisher)(nil)
