package api

import (
	"log/slog"
	"net/http"

	"scholarsource/internal/health"
	"scholarsource/internal/job"
	"scholarsource/internal/observability"
	"scholarsource/internal/tools"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	JobService     *job.Service
	HealthChecker  *health.Checker
	Metrics        *observability.Metrics
	Logger         *slog.Logger
	Version        string
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// NewRouter creates the HTTP handler with all routes and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	handler := &Handler{
		svc:     cfg.JobService,
		health:  cfg.HealthChecker,
		metrics: cfg.Metrics,
		logger:  logger,
		version: cfg.Version,
		maxBody: maxBody,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handler.Info)
	mux.HandleFunc("GET /api/health", handler.Health)

	// Probes
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	mux.HandleFunc("POST /api/submit", handler.Submit)
	mux.HandleFunc("GET /api/status/{job_id}", handler.Status)
	mux.HandleFunc("GET /api/results/{job_id}", handler.Results)
	mux.HandleFunc("GET /api/results/{job_id}/export", handler.Export)

	// Outermost first: recovery wraps logging wraps metrics.
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware(cfg.AllowedOrigins)(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware(logger)(h)
	h = RecoveryMiddleware(logger)(h)

	return h
}

// ToolsRouterConfig holds dependencies for the tools router.
type ToolsRouterConfig struct {
	Tools   *tools.Registry
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// NewToolsRouter serves the engine tool callbacks. It is mounted on its own
// listener, never on the public API port, because the tools fetch arbitrary
// URLs on the caller's behalf.
func NewToolsRouter(cfg ToolsRouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tools-api")

	registry := cfg.Tools
	if registry == nil {
		registry = tools.NewRegistry()
	}
	handler := &Handler{
		tools:   registry,
		metrics: cfg.Metrics,
		logger:  logger,
		maxBody: defaultMaxBodyBytes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /internal/tools", handler.ListTools)
	mux.HandleFunc("POST /internal/tools/{name}", handler.InvokeTool)

	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = LoggingMiddleware(logger)(h)
	h = RecoveryMiddleware(logger)(h)
	return h
}
