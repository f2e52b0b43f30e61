package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the service's instruments, grouped by the golden signals
// they cover: latency, traffic, errors and saturation.
type Metrics struct {
	meter metric.Meter

	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	JobsSubmitted  metric.Int64Counter
	JobsRejected   metric.Int64Counter
	JobsFinished   metric.Int64Counter
	JobDuration    metric.Float64Histogram
	JobsActive     metric.Int64UpDownCounter
	Notifications  metric.Int64Counter
	ToolInvocation metric.Int64Counter

	DispatcherDuration  metric.Float64Histogram
	DispatcherDelivered metric.Int64Counter
	DispatcherFailed    metric.Int64Counter
	DispatcherDropped   metric.Int64Counter
	DispatcherRequeued  metric.Int64Counter
	DispatcherQueueSize metric.Int64Gauge
}

// NewMetrics creates all instruments backed by a Prometheus exporter and
// returns the handler that serves them.
func NewMetrics(_ context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m := &Metrics{meter: provider.Meter("scholarsource")}
	if err := m.init(); err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

func (m *Metrics) init() error {
	var err error
	b := &builder{meter: m.meter}

	m.HTTPRequestDuration = b.histogram("http_request_duration_seconds", "HTTP request latency in seconds",
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10)
	m.HTTPRequestsTotal = b.counter("http_requests_total", "Total number of HTTP requests")
	m.HTTPErrorsTotal = b.counter("http_errors_total", "Total number of HTTP errors (4xx and 5xx)")

	m.JobsSubmitted = b.counter("jobs_submitted_total", "Jobs accepted and persisted as pending")
	m.JobsRejected = b.counter("jobs_rejected_total", "Jobs the worker pool refused to run")
	m.JobsFinished = b.counter("jobs_finished_total", "Jobs that reached a terminal status")
	m.JobDuration = b.histogram("job_duration_seconds", "Discovery run time from running to terminal",
		1, 5, 10, 30, 60, 120, 300, 600, 900, 1800)
	m.JobsActive = b.upDown("jobs_active", "Jobs currently running (saturation)")
	m.Notifications = b.counter("notifications_total", "Completion notification attempts")
	m.ToolInvocation = b.counter("tool_invocations_total", "Engine tool invocations")

	m.DispatcherDuration = b.histogram("dispatcher_duration_seconds", "Webhook delivery latency in seconds",
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10)
	m.DispatcherDelivered = b.counter("dispatcher_delivered_total", "Total events successfully delivered")
	m.DispatcherFailed = b.counter("dispatcher_failed_total", "Total events failed after retries")
	m.DispatcherDropped = b.counter("dispatcher_dropped_total", "Total events dropped (buffer full or max requeues)")
	m.DispatcherRequeued = b.counter("dispatcher_requeued_total", "Total events requeued due to open circuit")
	m.DispatcherQueueSize, err = m.meter.Int64Gauge("dispatcher_queue_size",
		metric.WithDescription("Current number of events in dispatcher queue (saturation)"))
	if err != nil {
		return err
	}
	return b.err
}

// builder keeps the first instrument creation error so init reads linearly.
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *builder) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.keep(err)
	return c
}

func (b *builder) histogram(name, desc string, buckets ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	b.keep(err)
	return h
}

func (b *builder) keep(err error) {
	if b.err == nil {
		b.err = err
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobSubmitted counts a persisted submission.
func (m *Metrics) RecordJobSubmitted(ctx context.Context) {
	m.JobsSubmitted.Add(ctx, 1)
}

// RecordJobRejected counts a job abandoned because it could not be dispatched.
func (m *Metrics) RecordJobRejected(ctx context.Context) {
	m.JobsRejected.Add(ctx, 1)
}

// RecordJobStarted marks a job as running.
func (m *Metrics) RecordJobStarted(ctx context.Context, engine string) {
	m.JobsActive.Add(ctx, 1, metric.WithAttributes(engineAttr(engine)))
}

// RecordJobFinished records a running job reaching a terminal status.
func (m *Metrics) RecordJobFinished(ctx context.Context, engine, status string, durationSeconds float64) {
	m.JobsActive.Add(ctx, -1, metric.WithAttributes(engineAttr(engine)))
	attrs := metric.WithAttributes(engineAttr(engine), jobStatusAttr(status))
	m.JobsFinished.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, durationSeconds, attrs)
}

// RecordNotification counts a completion notification outcome.
func (m *Metrics) RecordNotification(ctx context.Context, success bool) {
	m.Notifications.Add(ctx, 1, metric.WithAttributes(successAttr(success)))
}

// RecordToolInvocation counts a tool call from the engine.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool string, success bool) {
	m.ToolInvocation.Add(ctx, 1, metric.WithAttributes(toolAttr(tool), successAttr(success)))
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherRequeued records a requeued event.
func (m *Metrics) RecordDispatcherRequeued(ctx context.Context) {
	m.DispatcherRequeued.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}
