package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	metrics, handler, err := NewMetrics(context.Background())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}
	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	metrics.RecordHTTPRequest(ctx, "GET", "/api/health", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/submit", 202, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/status/abc123", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/results/xyz789", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/submit", 500, 0.001)
}

func TestRecordJobMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	metrics.RecordJobSubmitted(ctx)
	metrics.RecordJobStarted(ctx, "docker")
	metrics.RecordJobFinished(ctx, "docker", "completed", 42.5)
	metrics.RecordJobRejected(ctx)
	metrics.RecordNotification(ctx, false)
	metrics.RecordToolInvocation(ctx, "webpage_fetcher", true)
	metrics.RecordDispatcherDelivered(ctx, 0.2)
	metrics.RecordDispatcherQueueSize(ctx, 3)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/api/health", "/api/health"},
		{"/api/submit", "/api/submit"},
		{"/api/status/", "/api/status/"},
		{"/api/status/0f9e1c2a-1111-4222-8333-944445555666", "/api/status/{job_id}"},
		{"/api/results/abc", "/api/results/{job_id}"},
		{"/api/results/abc/export", "/api/results/{job_id}/export"},
		{"/internal/tools/webpage_fetcher", "/internal/tools/{name}"},
		{"GET /api/status/{job_id}", "GET /api/status/{job_id}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.input); got != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
