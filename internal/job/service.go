package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"scholarsource/internal/apperrors"
)

// Client-facing status messages.
const (
	SubmitMessage  = "Job created successfully. Use job_id to poll for status."
	queuedMessage  = "Job queued"
	runningMessage = "Discovering resources"
)

// ErrInterrupted marks jobs that were in flight when the process stopped.
var ErrInterrupted = errors.New("interrupted: service restarted")

// Options wires a Service. Store, Engine and Runner are required.
type Options struct {
	Store    Store
	Engine   Engine
	Notifier Notifier
	Runner   *Runner
	Logger   *slog.Logger
	Metrics  MetricsRecorder
	Events   EventPublisher

	// EngineTimeout bounds one discovery call; 0 means no limit.
	EngineTimeout time.Duration
	// WriteTimeout bounds each store write made off the request path.
	WriteTimeout time.Duration

	Clock Clock
	NewID func() string
}

// Service owns job records: it creates them, runs discovery for them in
// the background and is the only writer after creation.
type Service struct {
	store    Store
	engine   Engine
	notifier Notifier
	runner   *Runner
	logger   *slog.Logger
	metrics  MetricsRecorder
	events   EventPublisher

	engineTimeout time.Duration
	writeTimeout  time.Duration
	now           Clock
	newID         func() string
}

// NewService validates opts and fills optional collaborators with no-ops.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("job: store is required")
	case opts.Engine == nil:
		return nil, errors.New("job: engine is required")
	case opts.Runner == nil:
		return nil, errors.New("job: runner is required")
	}

	s := &Service{
		store:         opts.Store,
		engine:        opts.Engine,
		notifier:      opts.Notifier,
		runner:        opts.Runner,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		events:        opts.Events,
		engineTimeout: opts.EngineTimeout,
		writeTimeout:  opts.WriteTimeout,
		now:           opts.Clock,
		newID:         opts.NewID,
	}
	if s.notifier == nil {
		s.notifier = disabledNotifier{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "jobs")
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Create validates inputs, persists a pending record and hands the job to
// the runner without waiting for it. A store failure returns no id.
//
// If the runner refuses the job, it is failed on the spot and the id is
// still returned so the outcome is visible through polling.
func (s *Service) Create(ctx context.Context, in Inputs) (*SubmitResponse, error) {
	in.Normalize()
	if err := CheckInputs(in); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:            s.newID(),
		Status:        StatusPending,
		Inputs:        in,
		StatusMessage: queuedMessage,
		CreatedAt:     s.now().UTC(),
	}
	logger := s.logger.With("job_id", rec.ID)

	if err := s.store.Put(ctx, rec.Clone()); err != nil {
		logger.Error("Job creation failed", "error", err)
		return nil, apperrors.Internal("store.put", err)
	}
	s.metrics.RecordJobSubmitted(ctx)

	owned := rec.Clone()
	if err := s.runner.Submit(rec.ID, func(ctx context.Context) { s.execute(ctx, owned) }); err != nil {
		s.metrics.RecordJobRejected(ctx)
		logger.Warn("Job dispatch rejected", "error", err)
		s.abandon(ctx, logger, owned, fmt.Errorf("dispatch rejected: %w", err))
		return &SubmitResponse{
			JobID:   rec.ID,
			Status:  owned.Status,
			Message: "Job could not be scheduled: " + err.Error(),
		}, nil
	}

	logger.Info("Job created")
	return &SubmitResponse{JobID: rec.ID, Status: StatusPending, Message: SubmitMessage}, nil
}

// Get returns the current snapshot of a job.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnavailable) {
			return nil, err
		}
		return nil, apperrors.Internal("store.get", err)
	}
	if rec == nil {
		return nil, apperrors.NotFoundf("job", "No job found with ID: %s", id)
	}
	return rec.Clone(), nil
}

// GetShareable returns a job only once it has completed.
func (s *Service) GetShareable(ctx context.Context, id string) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusCompleted {
		return nil, apperrors.NotFoundf("results",
			"Job is %s. Results are only available for completed jobs.", rec.Status)
	}
	return rec, nil
}

// Recover fails jobs left pending or running by a previous process. It is
// a no-op for stores that cannot list by status.
func (s *Service) Recover(ctx context.Context) (int, error) {
	lister, ok := s.store.(Lister)
	if !ok {
		return 0, nil
	}
	orphans, err := lister.ListByStatus(ctx, StatusPending, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("list unfinished jobs: %w", err)
	}

	recovered := 0
	for _, rec := range orphans {
		logger := s.logger.With("job_id", rec.ID)
		if s.abandon(ctx, logger, rec, ErrInterrupted) {
			recovered++
		}
	}
	if recovered > 0 {
		s.logger.Info("Recovered interrupted jobs", "count", recovered)
	}
	return recovered, nil
}

// Close stops accepting work and waits for running jobs.
func (s *Service) Close(ctx context.Context) error {
	return s.runner.Close(ctx)
}

// execute runs on a runner worker and is the only writer of rec after
// creation.
func (s *Service) execute(ctx context.Context, rec *Record) {
	logger := s.logger.With("job_id", rec.ID)

	if err := rec.MarkRunning(runningMessage); err != nil {
		logger.Warn("Skipping job", "error", err)
		return
	}
	if err := s.persist(ctx, rec); err != nil {
		logger.Error("Failed to persist running status", "error", err)
		s.fail(ctx, logger, rec, fmt.Errorf("persist running status: %w", err))
		return
	}

	engine := s.engine.Name()
	started := s.now()
	s.metrics.RecordJobStarted(ctx, engine)
	logger.Info("Discovery started", "engine", engine)

	res, err := s.discover(ctx, logger, rec.ID, rec.Inputs)
	elapsed := s.now().Sub(started)
	defer func() {
		s.metrics.RecordJobFinished(ctx, engine, string(rec.Status), elapsed.Seconds())
	}()

	if err != nil {
		logger.Warn("Discovery failed", "error", err, "duration", elapsed)
		s.fail(ctx, logger, rec, err)
		return
	}

	done := rec.Clone()
	done.Metadata = withMetadata(done.Metadata, map[string]string{
		"engine":         engine,
		"resource_count": strconv.Itoa(len(res.Resources)),
		"duration_ms":    strconv.FormatInt(elapsed.Milliseconds(), 10),
	})
	if err := done.Complete(res, s.now()); err != nil {
		logger.Error("Cannot complete job", "error", err)
		return
	}
	if err := s.persist(ctx, done); err != nil {
		logger.Error("Failed to persist results", "error", err)
		s.fail(ctx, logger, rec, fmt.Errorf("persist results: %w", err))
		return
	}
	*rec = *done
	logger.Info("Job completed", "resources", len(rec.Results), "duration", elapsed)

	s.notify(ctx, logger, rec)
}

// discover calls the engine in its own goroutine so a timeout or runner
// cancellation ends the job even when the engine ignores ctx. A result
// that arrives afterwards is dropped.
func (s *Service) discover(ctx context.Context, logger *slog.Logger, id string, in Inputs) (*Result, error) {
	if s.engineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.engineTimeout)
		defer cancel()
	}

	type outcome struct {
		res *Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := s.callEngine(ctx, id, in)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		if o.err == nil && o.res == nil {
			return nil, errors.New("engine returned no result")
		}
		return o.res, o.err
	case <-ctx.Done():
		go func() {
			<-ch
			logger.Debug("Dropped late engine result")
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && s.engineTimeout > 0 {
			return nil, fmt.Errorf("discovery timed out after %s", s.engineTimeout)
		}
		return nil, fmt.Errorf("discovery cancelled: %w", ctx.Err())
	}
}

func (s *Service) callEngine(ctx context.Context, id string, in Inputs) (res *Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			s.logger.Error("Engine panicked", "job_id", id, "panic", fmt.Sprint(v), "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("engine panic: %v", v)
		}
	}()
	return s.engine.Discover(ctx, id, in)
}

// notify runs only after the completed record is committed. Its outcome
// never touches the record.
func (s *Service) notify(ctx context.Context, logger *slog.Logger, rec *Record) {
	n := Notification{
		Recipient: rec.Inputs.Email,
		Title:     rec.SearchTitle,
		Results:   slices.Clone(rec.Results),
		JobID:     rec.ID,
	}

	ok := func() (ok bool) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("Notifier panicked", "panic", fmt.Sprint(v))
				ok = false
			}
		}()
		return s.notifier.Notify(context.WithoutCancel(ctx), n)
	}()

	s.metrics.RecordNotification(ctx, ok)
	if !ok {
		logger.Warn("Completion notification not delivered")
		return
	}
	logger.Info("Completion notification sent")
}

// fail moves rec to failed and persists it. If even that write fails the
// job stays in its last committed state and is logged as stuck.
func (s *Service) fail(ctx context.Context, logger *slog.Logger, rec *Record, cause error) {
	if err := rec.Fail(cause, s.now()); err != nil {
		logger.Error("Cannot fail job", "error", err)
		return
	}
	if err := s.persist(ctx, rec); err != nil {
		logger.Error("Job stuck: failed to persist failure", "error", err, "cause", cause)
	}
}

// abandon fails a job that never reached the engine. It passes through
// running so the status sequence stays pending, running, failed.
func (s *Service) abandon(ctx context.Context, logger *slog.Logger, rec *Record, cause error) bool {
	if rec.Status == StatusPending {
		if err := rec.MarkRunning(runningMessage); err != nil {
			logger.Error("Cannot abandon job", "error", err)
			return false
		}
		if err := s.persist(ctx, rec); err != nil {
			logger.Error("Job stuck: failed to persist abandonment", "error", err, "cause", cause)
			return false
		}
	}
	s.fail(ctx, logger, rec, cause)
	return rec.Status == StatusFailed
}

// persist writes a copy of rec. Writes are detached from caller
// cancellation so a shutdown cannot leave a half-recorded transition.
func (s *Service) persist(ctx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	if err := s.store.Put(ctx, rec.Clone()); err != nil {
		return err
	}
	if s.events != nil {
		s.events.Publish(ctx, rec.Clone())
	}
	return nil
}

func withMetadata(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

type disabledNotifier struct{}

func (disabledNotifier) Notify(context.Context, Notification) bool { return false }

type nopMetrics struct{}

func (nopMetrics) RecordJobSubmitted(context.Context)                         {}
func (nopMetrics) RecordJobRejected(context.Context)                          {}
func (nopMetrics) RecordJobStarted(context.Context, string)                   {}
func (nopMetrics) RecordJobFinished(context.Context, string, string, float64) {}
func (nopMetrics) RecordNotification(context.Context, bool)                   {}
