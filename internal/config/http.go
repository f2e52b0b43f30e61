package config

import (
	"net"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	Port        string `env:"PORT"         envDefault:"8000"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// ToolsAddr is the listen address for the engine tool callbacks. They
	// never share the public port; empty disables them.
	ToolsAddr string `env:"TOOLS_ADDR" envDefault:"127.0.0.1:8001"`

	// PublicBaseURL is used to build shareable result links in emails.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	// AllowedOrigins lists browser origins permitted by CORS.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173,http://127.0.0.1:3000"`

	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`

	// ShutdownDrainWait is how long to wait for load balancers to notice
	// the readiness flip before closing listeners (0 to skip).
	ShutdownDrainWait time.Duration `env:"SHUTDOWN_DRAIN_WAIT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT"    envDefault:"30s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = 1 << 20
	}
	if h.ShutdownDrainWait < 0 {
		h.ShutdownDrainWait = 0
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 30 * time.Second
	}
}

// ToolsBaseURL is the URL the engine uses to reach the tools listener,
// or "" when ToolsAddr is unset or malformed. Wildcard hosts map to localhost.
func (h *HTTPConfig) ToolsBaseURL() string {
	if h.ToolsAddr == "" {
		return ""
	}
	host, port, err := net.SplitHostPort(h.ToolsAddr)
	if err != nil {
		return ""
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/internal/tools"
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	// File, when set, receives a copy of every log line.
	File string `env:"FILE"`
}
