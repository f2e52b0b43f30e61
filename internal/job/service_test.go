package job_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"scholarsource/internal/apperrors"
	"scholarsource/internal/job"
	"scholarsource/internal/mocks"
	"scholarsource/internal/store/memory"
	"scholarsource/internal/testutil"
)

// historyStore wraps the memory store and records every status written
// per job. failOn makes Put fail for records in that status.
type historyStore struct {
	*memory.Store

	mu      sync.Mutex
	history map[string][]job.Status
	failOn  job.Status
}

func newHistoryStore() *historyStore {
	return &historyStore{Store: memory.New(), history: make(map[string][]job.Status)}
}

func (s *historyStore) Put(ctx context.Context, rec *job.Record) error {
	s.mu.Lock()
	fail := s.failOn != "" && rec.Status == s.failOn
	if !fail {
		s.history[rec.ID] = append(s.history[rec.ID], rec.Status)
	}
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, rec)
}

func (s *historyStore) statuses(id string) []job.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history[id])
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []job.Status
}

func (p *recordingPublisher) Publish(_ context.Context, rec *job.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, rec.Status)
}

func (p *recordingPublisher) seen() []job.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.types)
}

type fixture struct {
	svc      *job.Service
	store    *historyStore
	engine   *mocks.MockEngine
	notifier *mocks.MockNotifier
	runner   *job.Runner
}

func newFixture(t *testing.T, configure ...func(*job.Options)) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &fixture{
		store:    newHistoryStore(),
		engine:   mocks.NewMockEngine(ctrl),
		notifier: mocks.NewMockNotifier(ctrl),
		runner:   job.NewRunner(job.RunnerConfig{Workers: 2, QueueSize: 8}, quietLogger()),
	}
	f.engine.EXPECT().Name().Return("test").AnyTimes()

	opts := job.Options{
		Store:    f.store,
		Engine:   f.engine,
		Notifier: f.notifier,
		Runner:   f.runner,
		Logger:   quietLogger(),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	svc, err := job.NewService(opts)
	require.NoError(t, err)
	f.svc = svc

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return f
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fixture) waitForStatus(t *testing.T, id string, want job.Status) *job.Record {
	t.Helper()
	return testutil.MustWaitForValue(t, func() (*job.Record, bool) {
		rec, err := f.svc.Get(context.Background(), id)
		if err != nil {
			return nil, false
		}
		return rec, rec.Status == want
	})
}

func algorithmsResult() *job.Result {
	return &job.Result{
		Title: "Algorithms Resources",
		Resources: []job.Resource{
			{Type: "textbook", Title: "Introduction to Algorithms", URL: "https://example.com/clrs"},
			{Type: "video", Title: "MIT 6.006 Lectures", URL: "https://example.com/6006"},
			{Type: "practice", Title: "Problem Sets", URL: "https://example.com/psets"},
		},
		RawOutput: `{"title":"Algorithms Resources"}`,
	}
}

func TestService_CompletesJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var gotInputs job.Inputs
	f.engine.EXPECT().Discover(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, in job.Inputs) (*job.Result, error) {
			gotInputs = in
			return algorithmsResult(), nil
		})

	notified := make(chan job.Notification, 1)
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n job.Notification) bool {
			notified <- n
			return true
		})

	resp, err := f.svc.Create(context.Background(), job.Inputs{
		CourseName: "Intro to Algorithms",
		Email:      "student@example.edu",
	})
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, resp.Status)
	assert.Equal(t, job.SubmitMessage, resp.Message)
	require.NotEmpty(t, resp.JobID)

	rec := f.waitForStatus(t, resp.JobID, job.StatusCompleted)
	assert.Equal(t, "Algorithms Resources", rec.SearchTitle)
	assert.Len(t, rec.Results, 3)
	assert.Nil(t, rec.Error)
	require.NotNil(t, rec.CompletedAt)
	assert.False(t, rec.CompletedAt.Before(rec.CreatedAt))
	assert.Equal(t, "test", rec.Metadata["engine"])
	assert.Equal(t, "3", rec.Metadata["resource_count"])
	assert.Equal(t, "Intro to Algorithms", gotInputs.CourseName)

	select {
	case n := <-notified:
		assert.Equal(t, "student@example.edu", n.Recipient)
		assert.Equal(t, "Algorithms Resources", n.Title)
		assert.Equal(t, resp.JobID, n.JobID)
		assert.Len(t, n.Results, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("notifier was not called")
	}

	assert.Equal(t, []job.Status{job.StatusPending, job.StatusRunning, job.StatusCompleted}, f.store.statuses(resp.JobID))

	shared, err := f.svc.GetShareable(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, rec.Results, shared.Results)
}

func TestService_CreateReturnsBeforeDiscoveryFinishes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	release := make(chan struct{})
	f.engine.EXPECT().Discover(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, job.Inputs) (*job.Result, error) {
			<-release
			return algorithmsResult(), nil
		})
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(true)

	resp, err := f.svc.Create(context.Background(), job.Inputs{ISBN: "978-0262046305"})
	require.NoError(t, err)

	rec := f.waitForStatus(t, resp.JobID, job.StatusRunning)
	assert.Nil(t, rec.CompletedAt)

	close(release)
	f.waitForStatus(t, resp.JobID, job.StatusCompleted)
}

func TestService_RejectsEmptyInputs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, err := f.svc.Create(context.Background(), job.Inputs{TopicsList: "  ", Email: "a@b.co"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Contains(t, err.Error(), job.MissingInputsMessage)
	assert.Equal(t, 0, f.store.Len())
}

func TestService_EngineFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.engine.EXPECT().Discover(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("network timeout"))
	// No Notify expectation: a failed job must not notify.

	resp, err := f.svc.Create(context.Background(), job.Inputs{BookTitle: "CLRS", BookAuthor: "Cormen"})
	require.NoError(t, err)

	rec := f.waitForStatus(t, resp.JobID, job.StatusFailed)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "network timeout")
	assert.Nil(t, rec.Results)
	assert.NotNil(t, rec.CompletedAt)
	assert.Equal(t, []job.Status{job.StatusPending, job.StatusRunning, job.StatusFailed}, f.store.statuses(resp.JobID))

	_, err = f.svc.GetShareable(context.Background(), resp.JobID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "Job is failed")
}

func TestService_EnginePanicFailsJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.engine.EXPECT().Discover(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, job.Inputs) (*job.Result, error) {
			panic("container vanished")
		})

	resp, err := f.svc.Create(context.Background(), job.Inputs{CourseURL: "https://ocw.mit.edu/6-006"})
	require.NoError(t, err)

	rec := f.waitForStatus(t, resp.JobID, job.StatusFailed)
	assert.Contains(t, *rec.Error, "container vanished")
}

func TestService_UnknownJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	const id = "00000000-0000-0000-0000-000000000000"

	_, err := f.svc.Get(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "No job found with ID: "+id)

	_, err = f.svc.GetShareable(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestService_NotifierFailureDoesNotAffectJob(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		notify func(context.Context, job.Notification) bool
	}{
		{"returns false", func(context.Context, job.Notification) bool { return false }},
		{"panics", func(context.Context, job.Notification) bool { panic("smtp down") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.engine.EXPECT().Discover(gomock.Any(), gomock.Any(), gomock.Any()).Return(algorithmsResult(), nil)

			called := make(chan struct{})
			f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
				DoAndReturn(func(ctx context.Context, n job.Notification) bool {
					defer close(called)
					return tt.notify(ctx, n)
				})

			resp, err := f.svc.Create(context.Background(), job.Inputs{CourseName: "Intro to Algorithms"})
			require.NoError(t, err)

			f.waitForStatus(t, resp.JobID, job.StatusCompleted)
			<-called

			rec, err := f.svc.Get(context.Background(), resp.JobID)
			require.NoError(t, err)
			assert.Equal(t, job.StatusCompleted, rec.Status)
			assert.Nil(t, rec.Error)
			assert.Len(t, rec.Results, 3)
		})
	}
}

func TestService_StoreFailureOnCreate(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	engine := mocks.NewMockEngine(ctrl)
	store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

	runner := job.NewRunner(job.RunnerConfig{Workers: 1}, quietLogger())
	defer runner.Close(context.Background())
	svc, err := job.NewService(job.Options{Store: store, Engine: engine, Runner: runner, Logger: quietLogger()})
	require.NoError(t, err)

	resp, err := svc.Create(context.Background(), job.Inputs{CourseName: "Intro to Algorithms"})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, apperrors.ErrInternal)
	assert.Equal(t, int64(0), runner.Stats().Completed)
}

func TestService_StoreUnavailableOnGet(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any(), "j1").
		Return(nil, apperrors.Unavailable("redis.get", errors.New("dial tcp: refused")))

	runner := job.NewRunner(job.RunnerConfig{Workers: 1}, quietLogger())
	defer runner.Close(context.Background())
	svc, err := job.NewService(job.Options{Store: store, Engine: mocks.NewMockEngine(ctrl), Runner: runner})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "j1")
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, 503, apperrors.HTTPStatus(err))
}

func TestService_DispatchRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.runner.Close(context.Background()))

	resp, err := f.svc.Create(context.Background(), job.Inputs{CourseName: "Intro to Algorithms"})
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, resp.Status)
	assert.Contains(t, resp.Message, "could not be scheduled")

	rec, err := f.svc.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "dispatch rejected")
	assert.Equal(t, []job.Status{job.StatusPending, job.StatusRunning, job.StatusFailed}, f.store.statuses(resp.JobID))
}

func TestService_EngineTimeoutDropsLateResult(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(o *job.Options) { o.EngineTimeout = 20 * time.Millisecond })

	release := make(chan struct{})
	returned := make(chan struct{})
	f.engine.EXPECT().Discover(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, job.Inputs) (*job.Result, error) {
			defer close(returned)
			<-release
			return algorithmsResult(), nil
		})

	resp, err := f.svc.Create(context.Background(), job.Inputs{CourseName: "Intro to Algorithms"})
	require.NoError(t, err)

	rec := f.waitForStatus(t, resp.JobID, job.StatusFailed)
	assert.Contains(t, *rec.Error, "timed out")

	close(release)
	<-returned
	time.Sleep(20 * time.Millisecond)

	rec, err = f.svc.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, rec.Status)
	assert.Nil(t, rec.Results)
}

func TestService_ResultPersistFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.failOn = job.StatusCompleted
	f.engine.EXPECT().Discover(gomock.Any(), gomock.Any(), gomock.Any()).Return(algorithmsResult(), nil)

	resp, err := f.svc.Create(context.Background(), job.Inputs{CourseName: "Intro to Algorithms"})
	require.NoError(t, err)

	rec := f.waitForStatus(t, resp.JobID, job.StatusFailed)
	assert.Contains(t, *rec.Error, "persist results")
	assert.Nil(t, rec.Results)
}

func TestService_PublishesLifecycleEvents(t *testing.T) {
	t.Parallel()
	pub := &recordingPublisher{}
	f := newFixture(t, func(o *job.Options) { o.Events = pub })
	f.engine.EXPECT().Discover(gomock.Any(), gomock.Any(), gomock.Any()).Return(algorithmsResult(), nil)
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(true)

	resp, err := f.svc.Create(context.Background(), job.Inputs{CourseName: "Intro to Algorithms"})
	require.NoError(t, err)
	f.waitForStatus(t, resp.JobID, job.StatusCompleted)

	testutil.MustWaitFor(t, func() bool { return len(pub.seen()) == 2 })
	assert.Equal(t, []job.Status{job.StatusRunning, job.StatusCompleted}, pub.seen())
}

func TestService_Recover(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pending := &job.Record{ID: "pending", Status: job.StatusPending, CreatedAt: now}
	running := &job.Record{ID: "running", Status: job.StatusRunning, CreatedAt: now}
	done := &job.Record{ID: "done", Status: job.StatusRunning, CreatedAt: now}
	require.NoError(t, done.Complete(&job.Result{Title: "x"}, now))
	for _, r := range []*job.Record{pending, running, done} {
		require.NoError(t, f.store.Store.Put(ctx, r))
	}

	n, err := f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"pending", "running"} {
		rec, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, job.StatusFailed, rec.Status, id)
		assert.Equal(t, job.ErrInterrupted.Error(), *rec.Error)
	}
	assert.Equal(t, []job.Status{job.StatusRunning, job.StatusFailed}, f.store.statuses("pending"))

	rec, err := f.svc.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, rec.Status)
}

func TestService_RecoverListError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	lister.EXPECT().ListByStatus(gomock.Any(), job.StatusPending, job.StatusRunning).
		Return(nil, errors.New("relation does not exist"))

	store := struct {
		*mocks.MockStore
		*mocks.MockLister
	}{mocks.NewMockStore(ctrl), lister}

	runner := job.NewRunner(job.RunnerConfig{Workers: 1}, quietLogger())
	defer runner.Close(context.Background())
	svc, err := job.NewService(job.Options{Store: store, Engine: mocks.NewMockEngine(ctrl), Runner: runner})
	require.NoError(t, err)

	_, err = svc.Recover(context.Background())
	assert.ErrorContains(t, err, "relation does not exist")
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	runner := job.NewRunner(job.RunnerConfig{Workers: 1}, quietLogger())
	defer runner.Close(context.Background())

	_, err := job.NewService(job.Options{Engine: mocks.NewMockEngine(ctrl), Runner: runner})
	assert.ErrorContains(t, err, "store is required")
	_, err = job.NewService(job.Options{Store: memory.New(), Runner: runner})
	assert.ErrorContains(t, err, "engine is required")
	_, err = job.NewService(job.Options{Store: memory.New(), Engine: mocks.NewMockEngine(ctrl)})
	assert.ErrorContains(t, err, "runner is required")
}
