package job

import (
	"errors"
	"fmt"
	"time"

	"scholarsource/internal/apperrors"
)

// ErrInvalidTransition is matched by errors.Is on every illegal state change.
// The returned error is also an apperrors conflict.
var ErrInvalidTransition = errors.New("invalid job state transition")

// transitions lists the legal edges of the job state machine. Every job
// passes through running, even one that fails before the engine is called.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (r *Record) transition(to Status) error {
	if !CanTransition(r.Status, to) {
		return &apperrors.Error{
			Sentinel: apperrors.ErrConflict,
			Message:  fmt.Sprintf("job %s cannot move from %s to %s", r.ID, r.Status, to),
			Resource: "job",
			Cause:    ErrInvalidTransition,
		}
	}
	r.Status = to
	return nil
}

// MarkRunning moves a pending record to running.
func (r *Record) MarkRunning(message string) error {
	if err := r.transition(StatusRunning); err != nil {
		return err
	}
	r.StatusMessage = message
	return nil
}

// Complete moves a running record to completed with the engine's result.
func (r *Record) Complete(res *Result, now time.Time) error {
	if err := r.transition(StatusCompleted); err != nil {
		return err
	}
	r.SearchTitle = res.Title
	r.Results = res.Resources
	if r.Results == nil {
		r.Results = []Resource{}
	}
	r.RawOutput = nil
	if res.RawOutput != "" {
		raw := res.RawOutput
		r.RawOutput = &raw
	}
	r.Error = nil
	r.StatusMessage = fmt.Sprintf("Found %d resource(s)", len(r.Results))
	r.finish(now)
	return nil
}

// Fail moves a running record to failed.
func (r *Record) Fail(cause error, now time.Time) error {
	if err := r.transition(StatusFailed); err != nil {
		return err
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	r.Error = &msg
	r.Results = nil
	r.RawOutput = nil
	r.StatusMessage = "Job failed"
	r.finish(now)
	return nil
}

// finish stamps CompletedAt the first time a terminal state is entered.
func (r *Record) finish(now time.Time) {
	if r.CompletedAt == nil {
		t := now.UTC()
		r.CompletedAt = &t
	}
}
