//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scholarsource/internal/api"
	"scholarsource/internal/dispatcher"
	"scholarsource/internal/engine"
	"scholarsource/internal/engine/remote"
	"scholarsource/internal/health"
	"scholarsource/internal/job"
	"scholarsource/internal/notify"
	"scholarsource/internal/store/sqlite"
	"scholarsource/pkg/backoff"
	"scholarsource/pkg/cloudevent"
)

const webhookKey = "e2e-signing-key"

// fakeEngine answers discovery requests like a crew service would. Course
// names starting with "fail" get a 500.
func fakeEngine(t testing.TB) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		var req remote.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if strings.HasPrefix(req.Inputs.CourseName, "fail") {
			http.Error(w, "crew crashed", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("```json\n" + `{
			"search_title": "` + req.Inputs.CourseName + ` Study Guide",
			"resources": [
				{"type": "textbook", "title": "Open Data Structures", "url": "https://opendatastructures.org", "source": "OTL"},
				{"type": "video", "title": "Lecture 1", "url": "https://ocw.mit.edu/6-006/1"}
			]
		}` + "\n```"))
	}))
	t.Cleanup(server.Close)
	return server
}

// inbox collects emails posted to a fake Resend API.
type inbox struct {
	mu     sync.Mutex
	emails []map[string]any
}

func (i *inbox) handler(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	i.mu.Lock()
	i.emails = append(i.emails, body)
	i.mu.Unlock()
	_, _ = w.Write([]byte(`{"id":"email"}`))
}

func (i *inbox) all() []map[string]any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]map[string]any(nil), i.emails...)
}

// hooks collects verified webhook CloudEvents.
type hooks struct {
	mu     sync.Mutex
	events []cloudevent.CloudEvent
	bad    int
}

func (h *hooks) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	h.mu.Lock()
	defer h.mu.Unlock()
	if !cloudevent.Verify(body, webhookKey, r.Header.Get(cloudevent.SignatureHeader)) {
		h.bad++
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var ev cloudevent.CloudEvent
	_ = json.Unmarshal(body, &ev)
	h.events = append(h.events, ev)
}

func (h *hooks) typesFor(jobID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, ev := range h.events {
		if ev.Subject == jobID {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (h *hooks) rejected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bad
}

type stack struct {
	URL   string
	inbox *inbox
	hooks *hooks
}

// newStack wires the API over a SQLite store and a remote engine, with
// email and webhook notifications pointed at local receivers.
func newStack(t testing.TB) *stack {
	t.Helper()
	if url := os.Getenv("E2E_API_URL"); url != "" {
		return &stack{URL: url}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "jobs.db"), logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	parser, err := engine.NewParser("search_title", "resources")
	if err != nil {
		t.Fatal(err)
	}
	eng := remote.New(fakeEngine(t).URL, "", parser, logger)

	mail := &inbox{}
	resend := httptest.NewServer(http.HandlerFunc(mail.handler))
	t.Cleanup(resend.Close)
	recv := &hooks{}
	webhook := httptest.NewServer(http.HandlerFunc(recv.handler))
	t.Cleanup(webhook.Close)

	d := dispatcher.NewMemory(dispatcher.Config{BufferSize: 1000, Workers: 4, RetryInitial: time.Millisecond}, logger, nil)
	notifier := notify.New(logger,
		notify.NewEmailSink(notify.EmailConfig{
			APIKey: "re_e2e",
			APIURL: resend.URL,
			From:   "results@example.com",
			Retry:  backoff.Config{Initial: time.Millisecond},
		}, logger),
		notify.NewWebhookSink(d, webhook.URL, webhookKey),
	)

	svc, err := job.NewService(job.Options{
		Store:         st,
		Engine:        eng,
		Notifier:      notifier,
		Runner:        job.NewRunner(job.RunnerConfig{Workers: 8, QueueSize: 512}, logger),
		Logger:        logger,
		Events:        notify.NewLifecyclePublisher(d, webhook.URL, webhookKey, logger),
		EngineTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	checker := health.NewChecker().
		Register(api.StoreCheck, health.ProbeFunc(st.Ping)).
		Register("engine", eng)
	server := httptest.NewServer(api.NewRouter(api.RouterConfig{
		JobService:    svc,
		HealthChecker: checker,
		Logger:        logger,
		Version:       "e2e",
	}))

	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
		_ = d.Close(ctx)
		_ = st.Close()
	})
	return &stack{URL: server.URL, inbox: mail, hooks: recv}
}
