package notify

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scholarsource/internal/job"
	"scholarsource/pkg/backoff"
	"scholarsource/pkg/circuitbreaker"
)

//go:embed templates/results.html
var templatesFS embed.FS

var resultsTemplate = template.Must(template.ParseFS(templatesFS, "templates/results.html"))

// ErrNoRecipient is returned when a job was submitted without an email.
var ErrNoRecipient = errors.New("no recipient email address")

// EmailConfig configures the Resend email sink.
type EmailConfig struct {
	APIKey        string
	APIURL        string // default https://api.resend.com
	From          string
	PublicBaseURL string // links to /results/{job_id} when set
	Timeout       time.Duration
	MaxAttempts   int
	Retry         backoff.Config
	Breaker       circuitbreaker.Config
}

// EmailSink sends the results email through the Resend HTTP API.
type EmailSink struct {
	cfg     EmailConfig
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewEmailSink returns a sink for cfg. Callers skip it when no API key is
// configured.
func NewEmailSink(cfg EmailConfig, logger *slog.Logger) *EmailSink {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.resend.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSink{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New(cfg.Breaker),
		logger:  logger.With("component", "notify", "sink", "email"),
	}
}

func (s *EmailSink) Name() string { return "email" }

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	status int
	body   string
}

func (e *resendError) Error() string {
	return fmt.Sprintf("resend returned HTTP %d: %s", e.status, e.body)
}

// Send renders and delivers the email, retrying transient failures.
func (s *EmailSink) Send(ctx context.Context, n job.Notification) error {
	if strings.TrimSpace(n.Recipient) == "" {
		return ErrNoRecipient
	}

	body, err := s.Render(n)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(resendRequest{
		From:    s.cfg.From,
		To:      []string{n.Recipient},
		Subject: Subject(n.Title),
		HTML:    body,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	// Rejections of a single message (bad address, 422) say nothing about
	// the API's health and must not open the circuit for other recipients.
	return s.breaker.DoWith(func() error {
		return backoff.Retry(ctx, s.cfg.MaxAttempts, &s.cfg.Retry, func(ctx context.Context) error {
			return s.post(ctx, payload)
		}, retryable)
	}, retryable)
}

func (s *EmailSink) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.cfg.APIURL, "/")+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &resendError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	var out resendResponse
	_ = json.Unmarshal(data, &out)
	s.logger.Debug("Email accepted", "resend_id", out.ID)
	return nil
}

// Subject is the email subject line for a results title.
func Subject(title string) string {
	return "Your ScholarSource Results: " + title
}

type emailView struct {
	Title      string
	Resources  []job.Resource
	JobID      string
	ResultsURL string
}

// Render produces the HTML body for n.
func (s *EmailSink) Render(n job.Notification) (string, error) {
	view := emailView{Title: n.Title, Resources: n.Results, JobID: n.JobID}
	if base := strings.TrimRight(s.cfg.PublicBaseURL, "/"); base != "" {
		view.ResultsURL = base + "/results/" + url.PathEscape(n.JobID)
	}

	var buf bytes.Buffer
	if err := resultsTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// retryable treats transport errors, 429 and 5xx as transient.
func retryable(err error) bool {
	var re *resendError
	if !errors.As(err, &re) {
		return !errors.Is(err, context.Canceled)
	}
	return re.status == http.StatusTooManyRequests || re.status >= 500
}
