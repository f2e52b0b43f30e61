// Package observability provides OpenTelemetry metrics exported to Prometheus.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrEngine    = "engine"
	attrJobStatus = "job_status"
	attrSuccess   = "success"
	attrTool      = "tool"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

// statusAttr groups codes into 2xx/4xx/5xx to bound cardinality.
func statusAttr(code int) attribute.KeyValue {
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func engineAttr(engine string) attribute.KeyValue {
	return attribute.String(attrEngine, engine)
}

func jobStatusAttr(status string) attribute.KeyValue {
	return attribute.String(attrJobStatus, status)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func toolAttr(tool string) attribute.KeyValue {
	return attribute.String(attrTool, tool)
}

// dynamicPrefixes are routes whose trailing segment is an identifier.
var dynamicPrefixes = []struct{ prefix, template string }{
	{"/api/status/", "/api/status/{job_id}"},
	{"/api/results/", "/api/results/{job_id}"},
	{"/internal/tools/", "/internal/tools/{name}"},
}

// normalizePath replaces identifiers in known routes with placeholders.
// Callers that know the matched mux pattern should pass that instead.
func normalizePath(path string) string {
	if strings.Contains(path, "{") {
		return path
	}
	for _, p := range dynamicPrefixes {
		if rest, ok := strings.CutPrefix(path, p.prefix); ok && rest != "" {
			if p.prefix == "/api/results/" && strings.HasSuffix(rest, "/export") {
				return "/api/results/{job_id}/export"
			}
			return p.template
		}
	}
	return path
}
