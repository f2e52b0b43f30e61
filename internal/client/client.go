// Package client is a small HTTP client for the ScholarSource API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scholarsource/internal/job"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Title      string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	switch {
	case e.Title != "" && e.Message != "":
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Title, e.Message, e.StatusCode)
	case e.Title != "":
		return fmt.Sprintf("%s (HTTP %d)", e.Title, e.StatusCode)
	default:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one API base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL, e.g. "http://localhost:8000".
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Submit creates a job.
func (c *Client) Submit(ctx context.Context, in job.Inputs) (*job.SubmitResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode inputs: %w", err)
	}
	var out job.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/submit", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, id string) (*job.StatusResponse, error) {
	var out job.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Results fetches a completed job's results.
func (c *Client) Results(ctx context.Context, id string) (*job.StatusResponse, error) {
	var out job.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/results/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export streams the XLSX workbook of a completed job into w.
func (c *Client) Export(ctx context.Context, id string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, "/api/results/"+url.PathEscape(id)+"/export", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	return nil
}

// Wait polls Status every interval until the job is terminal or ctx ends.
func (c *Client) Wait(ctx context.Context, id string, interval time.Duration, onUpdate func(*job.StatusResponse)) (*job.StatusResponse, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last job.Status
	for {
		st, err := c.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil && st.Status != last {
			onUpdate(st)
		}
		last = st.Status
		if st.Status.IsTerminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send performs the request and converts non-2xx responses to *APIError.
// On success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, apiErr) != nil {
		apiErr.Title = strings.TrimSpace(string(data))
	}
	return nil, apiErr
}
