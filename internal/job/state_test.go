package job

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholarsource/internal/apperrors"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()
	all := []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusRunning}:   true,
		{StatusRunning, StatusCompleted}: true,
		{StatusRunning, StatusFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "CanTransition(%s, %s)", from, to)
		}
	}
}

func TestRecord_Complete(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &Record{ID: "j1", Status: StatusPending}

	require.NoError(t, rec.MarkRunning("Discovering resources"))
	assert.Equal(t, "Discovering resources", rec.StatusMessage)

	res := &Result{
		Title:     "Algorithms Resources",
		Resources: []Resource{{Title: "a"}, {Title: "b"}, {Title: "c"}},
		RawOutput: "raw",
	}
	require.NoError(t, rec.Complete(res, now))

	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "Algorithms Resources", rec.SearchTitle)
	assert.Len(t, rec.Results, 3)
	require.NotNil(t, rec.RawOutput)
	assert.Equal(t, "raw", *rec.RawOutput)
	assert.Nil(t, rec.Error)
	assert.Equal(t, "Found 3 resource(s)", rec.StatusMessage)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.CompletedAt.Equal(now), "CompletedAt = %v, want %v", rec.CompletedAt, now)
}

func TestRecord_CompleteWithNoResources(t *testing.T) {
	t.Parallel()
	rec := &Record{ID: "j1", Status: StatusRunning}
	require.NoError(t, rec.Complete(&Result{}, time.Now()))

	require.NotNil(t, rec.Results, "empty results must be an empty slice, not nil")
	assert.Empty(t, rec.Results)
	assert.Nil(t, rec.RawOutput, "an engine without a trace leaves raw_output null")
}

func TestRecord_Fail(t *testing.T) {
	t.Parallel()
	rec := &Record{ID: "j1", Status: StatusRunning}
	require.NoError(t, rec.Fail(errors.New("network timeout"), time.Now()))

	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "network timeout", *rec.Error)
	assert.Nil(t, rec.Results)
	assert.Nil(t, rec.RawOutput)
	assert.NotNil(t, rec.CompletedAt)
}

func TestRecord_IllegalTransitions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		from Status
		op   func(*Record) error
	}{
		{"complete pending", StatusPending, func(r *Record) error { return r.Complete(&Result{}, time.Now()) }},
		{"fail pending", StatusPending, func(r *Record) error { return r.Fail(nil, time.Now()) }},
		{"run running", StatusRunning, func(r *Record) error { return r.MarkRunning("") }},
		{"fail completed", StatusCompleted, func(r *Record) error { return r.Fail(nil, time.Now()) }},
		{"complete failed", StatusFailed, func(r *Record) error { return r.Complete(&Result{}, time.Now()) }},
		{"run completed", StatusCompleted, func(r *Record) error { return r.MarkRunning("") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &Record{ID: "j1", Status: tt.from}
			err := tt.op(rec)

			require.ErrorIs(t, err, ErrInvalidTransition)
			assert.ErrorIs(t, err, apperrors.ErrConflict)
			assert.Equal(t, tt.from, rec.Status, "status changed on illegal transition")
		})
	}
}

func TestRecord_CompletedAtSetOnce(t *testing.T) {
	t.Parallel()
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &Record{Status: StatusRunning}
	rec.finish(first)
	rec.finish(first.Add(time.Hour))

	assert.True(t, rec.CompletedAt.Equal(first), "CompletedAt = %v, want %v", rec.CompletedAt, first)
}
