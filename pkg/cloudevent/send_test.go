package cloudevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", errors.New("connection refused"), true},
		{"400", &HTTPError{StatusCode: 400}, false},
		{"404", &HTTPError{StatusCode: 404}, false},
		{"408", &HTTPError{StatusCode: 408}, true},
		{"429", &HTTPError{StatusCode: 429}, true},
		{"500", &HTTPError{StatusCode: 500}, true},
		{"wrapped 503", fmt.Errorf("deliver: %w", &HTTPError{StatusCode: 503}), true},
		{"wrapped 422", fmt.Errorf("deliver: %w", &HTTPError{StatusCode: 422}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSender_Send(t *testing.T) {
	t.Parallel()

	type captured struct {
		header http.Header
		body   []byte
	}
	got := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	event := New("scholarsource.job.completed", "/scholarsource", "job-1", "evt-1", map[string]any{"resource_count": 3})
	sender := NewSender(5*time.Second, "scholarsource-test")

	if err := sender.Send(context.Background(), srv.URL, event, SendOptions{SigningKey: "k"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	c := <-got
	if c.header.Get("Ce-Type") != "scholarsource.job.completed" {
		t.Errorf("Ce-Type = %q", c.header.Get("Ce-Type"))
	}
	if c.header.Get("Ce-Subject") != "job-1" {
		t.Errorf("Ce-Subject = %q", c.header.Get("Ce-Subject"))
	}
	if c.header.Get("User-Agent") != "scholarsource-test" {
		t.Errorf("User-Agent = %q", c.header.Get("User-Agent"))
	}
	if !Verify(c.body, "k", c.header.Get(SignatureHeader)) {
		t.Error("signature did not verify against body")
	}
	if Verify(c.body, "other", c.header.Get(SignatureHeader)) {
		t.Error("signature verified with wrong key")
	}

	var decoded CloudEvent
	if err := json.Unmarshal(c.body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.SpecVersion != SpecVersion || decoded.ID != "evt-1" {
		t.Errorf("unexpected envelope %+v", decoded)
	}
}

func TestSender_SendUnsigned(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature header")
		}
	}))
	defer srv.Close()

	err := NewSender(time.Second, "").Send(context.Background(), srv.URL, New("t", "s", "", "1", nil), SendOptions{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestSender_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewSender(time.Second, "").Send(context.Background(), srv.URL, New("t", "s", "", "1", nil), SendOptions{})

	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected HTTPError 503, got %v", err)
	}
	if he.Error() != "HTTP 503" {
		t.Errorf("Error() = %q", he.Error())
	}
}
