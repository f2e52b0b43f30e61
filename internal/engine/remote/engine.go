// Package remote calls a discovery engine exposed over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"scholarsource/internal/engine"
	"scholarsource/internal/job"
)

// maxResponseBytes caps how much engine output is read.
const maxResponseBytes = 16 << 20

// Request is the body POSTed to the engine.
type Request struct {
	JobID    string     `json:"job_id"`
	Inputs   job.Inputs `json:"inputs"`
	ToolsURL string     `json:"tools_url,omitempty"`
}

// Engine implements job.Engine over HTTP.
type Engine struct {
	url      string
	toolsURL string
	client   *http.Client
	parser   *engine.Parser
	logger   *slog.Logger
}

// New creates a remote engine. The HTTP client has no timeout of its own;
// each call is bounded by the caller's context.
func New(url, toolsURL string, parser *engine.Parser, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		url:      url,
		toolsURL: toolsURL,
		client:   &http.Client{},
		parser:   parser,
		logger:   logger.With("component", "engine", "engine", "remote"),
	}
}

// Name identifies the engine in logs and metadata.
func (e *Engine) Name() string { return "remote" }

// Discover posts the inputs and parses the response body.
func (e *Engine) Discover(ctx context.Context, jobID string, in job.Inputs) (*job.Result, error) {
	body, err := json.Marshal(Request{JobID: jobID, Inputs: in, ToolsURL: e.toolsURL})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call engine: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read engine response: %w", err)
	}
	e.logger.Debug("Engine responded", "job_id", jobID, "status", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("engine returned HTTP %d: %s", resp.StatusCode, snippet(out))
	}
	return e.parser.Parse(out, in)
}

// Ready reports whether the engine endpoint answers at all.
func (e *Engine) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, e.url, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("engine returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func snippet(b []byte) string {
	const limit = 200
	b = bytes.TrimSpace(b)
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

var _ job.Engine = (*Engine)(nil)
