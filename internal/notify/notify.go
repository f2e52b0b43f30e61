// Package notify delivers completion notifications through one or more
// sinks: email via Resend and a CloudEvents webhook.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"scholarsource/internal/job"
)

// Sink is one notification channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, n job.Notification) error
}

// Service fans a notification out to every sink.
type Service struct {
	sinks  []Sink
	logger *slog.Logger
}

// New returns a Service over the given sinks.
func New(logger *slog.Logger, sinks ...Sink) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger.With("component", "notify")}
	s.sinks = append(s.sinks, sinks...)
	return s
}

// Enabled reports whether any sink is configured.
func (s *Service) Enabled() bool { return len(s.sinks) > 0 }

// Notify sends n to every sink. It reports true only if at least one sink
// is configured and all of them accepted the notification.
func (s *Service) Notify(ctx context.Context, n job.Notification) bool {
	logger := s.logger.With("job_id", n.JobID)
	if len(s.sinks) == 0 {
		logger.Debug("Notifications disabled")
		return false
	}

	ok := true
	for _, sink := range s.sinks {
		if err := s.send(ctx, sink, n); err != nil {
			logger.Warn("Notification failed", "sink", sink.Name(), "error", err)
			ok = false
			continue
		}
		logger.Info("Notification sent", "sink", sink.Name())
	}
	return ok
}

func (s *Service) send(ctx context.Context, sink Sink, n job.Notification) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("sink panicked: %v", v)
		}
	}()
	return sink.Send(ctx, n)
}

var _ job.Notifier = (*Service)(nil)
