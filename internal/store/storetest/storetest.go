// Package storetest is a conformance suite run against every job.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scholarsource/internal/job"
)

// NewRecord returns a pending record with a fresh id.
func NewRecord(created time.Time) *job.Record {
	return &job.Record{
		ID:            uuid.NewString(),
		Status:        job.StatusPending,
		Inputs:        job.Inputs{CourseName: "Intro to Algorithms", DesiredResourceTypes: []string{"textbook"}},
		StatusMessage: "Job queued",
		CreatedAt:     created.UTC().Truncate(time.Millisecond),
	}
}

// Run exercises the Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) job.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.Get(context.Background(), uuid.NewString())
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Now()

		rec := NewRecord(now)
		require.NoError(t, rec.MarkRunning("Discovering resources"))
		require.NoError(t, rec.Complete(&job.Result{
			Title:     "Algorithms Resources",
			Resources: []job.Resource{{Type: "textbook", Title: "CLRS", URL: "https://example.com/clrs", Source: "MIT Press"}},
			RawOutput: `{"resources":[]}`,
		}, now))
		rec.Metadata = map[string]string{"engine": "test"}

		require.NoError(t, s.Put(ctx, rec))
		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, job.StatusCompleted, got.Status)
		assert.Equal(t, rec.Inputs, got.Inputs)
		assert.Equal(t, "Algorithms Resources", got.SearchTitle)
		assert.Equal(t, rec.Results, got.Results)
		require.NotNil(t, got.RawOutput)
		assert.Equal(t, *rec.RawOutput, *got.RawOutput)
		assert.Nil(t, got.Error)
		assert.Equal(t, rec.Metadata, got.Metadata)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", rec.CreatedAt, got.CreatedAt)
		require.NotNil(t, got.CompletedAt)
		assert.WithinDuration(t, *rec.CompletedAt, *got.CompletedAt, time.Millisecond)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord(time.Now())
		require.NoError(t, s.Put(ctx, rec))

		require.NoError(t, rec.MarkRunning("Discovering resources"))
		require.NoError(t, rec.Fail(errors.New("network timeout"), time.Now()))
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Contains(t, *got.Error, "network timeout")
		assert.Nil(t, got.Results)
		assert.Nil(t, got.RawOutput)
	})

	t.Run("EmptyResultsSurvive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord(time.Now())
		require.NoError(t, rec.MarkRunning(""))
		require.NoError(t, rec.Complete(&job.Result{Title: "Nothing"}, time.Now()))
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Results)
		assert.Empty(t, got.Results)
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := NewRecord(time.Now())
		require.NoError(t, s.Put(ctx, rec))

		rec.StatusMessage = "mutated after put"
		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "Job queued", got.StatusMessage)

		got.Inputs.DesiredResourceTypes[0] = "changed"
		again, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "textbook", again.Inputs.DesiredResourceTypes[0])
	})

	t.Run("ConcurrentIndependentKeys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const n = 20

		var wg sync.WaitGroup
		errs := make(chan error, n)
		ids := make([]string, n)
		for i := range n {
			rec := NewRecord(time.Now())
			rec.StatusMessage = fmt.Sprintf("job %d", i)
			ids[i] = rec.ID
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Put(ctx, rec)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		for i, id := range ids {
			got, err := s.Get(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, fmt.Sprintf("job %d", i), got.StatusMessage)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(context.Background()))
	})

	t.Run("ListByStatus", func(t *testing.T) {
		s := newStore(t)
		lister, ok := s.(job.Lister)
		if !ok {
			t.Skip("store does not implement job.Lister")
		}
		ctx := context.Background()
		base := time.Now().Add(-time.Hour)

		pending := NewRecord(base)
		running := NewRecord(base.Add(time.Minute))
		require.NoError(t, running.MarkRunning("Discovering resources"))
		done := NewRecord(base.Add(2 * time.Minute))
		require.NoError(t, done.MarkRunning(""))
		require.NoError(t, done.Complete(&job.Result{}, time.Now()))

		for _, r := range []*job.Record{done, running, pending} {
			require.NoError(t, s.Put(ctx, r))
		}

		got, err := lister.ListByStatus(ctx, job.StatusPending, job.StatusRunning)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, pending.ID, got[0].ID)
		assert.Equal(t, running.ID, got[1].ID)

		// A status change must move the record out of the old status.
		require.NoError(t, running.Fail(errors.New("boom"), time.Now()))
		require.NoError(t, s.Put(ctx, running))
		got, err = lister.ListByStatus(ctx, job.StatusRunning)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
