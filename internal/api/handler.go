// Package api provides the HTTP handlers and routing for the ScholarSource
// API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"scholarsource/internal/apperrors"
	"scholarsource/internal/export"
	"scholarsource/internal/health"
	"scholarsource/internal/job"
	"scholarsource/internal/observability"
	"scholarsource/internal/tools"
)

// defaultMaxBodyBytes caps request bodies when no limit is configured.
const defaultMaxBodyBytes = 1 << 20

// StoreCheck is the health probe name /api/health reports as "database".
const StoreCheck = "store"

// Handler contains the HTTP handlers of the API.
type Handler struct {
	svc     *job.Service
	tools   *tools.Registry
	health  *health.Checker
	metrics *observability.Metrics
	logger  *slog.Logger
	version string
	maxBody int64
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// InfoResponse is returned by GET /.
type InfoResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Health  string `json:"health"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// ToolRequest is the body of POST /internal/tools/{name}.
type ToolRequest struct {
	Input string `json:"input"`
}

// ToolResponse carries a tool's output.
type ToolResponse struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
}

// Info handles GET /
func (h *Handler) Info(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, InfoResponse{
		Message: "ScholarSource API",
		Version: h.version,
		Health:  "/api/health",
	})
}

// Submit handles POST /api/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var in job.Inputs
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "Request too large",
				"Request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	resp, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.handleError(w, r, err, "Invalid inputs", "Job creation failed")
		return
	}

	h.writeJSON(w, http.StatusAccepted, resp)
}

// Status handles GET /api/status/{job_id}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), r.PathValue("job_id"))
	if err != nil {
		h.handleError(w, r, err, "Job not found", "Status lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, job.Project(rec))
}

// Results handles GET /api/results/{job_id}
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetShareable(r.Context(), r.PathValue("job_id"))
	if err != nil {
		h.handleError(w, r, err, resultsLabel(err), "Results lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, job.Project(rec))
}

// Export handles GET /api/results/{job_id}/export
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetShareable(r.Context(), r.PathValue("job_id"))
	if err != nil {
		h.handleError(w, r, err, resultsLabel(err), "Results lookup failed")
		return
	}

	data, err := export.Workbook(rec)
	if err != nil {
		h.handleError(w, r, apperrors.Internal("export.workbook", err), "", "Export failed")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(rec)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("Failed to write export", "job_id", rec.ID, "error", err)
	}
}

// resultsLabel distinguishes an unknown job from one that has not completed.
func resultsLabel(err error) string {
	if apperrors.ResourceOf(err) == "results" {
		return "Results not available"
	}
	return "Results not found"
}

// Health handles GET /api/health. It always answers 200; the database
// field carries the probe outcome.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	database := "connected"
	if res := h.health.Check(r.Context(), StoreCheck); res.Status != health.StatusHealthy {
		database = "error: " + res.Message
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  h.version,
		Database: database,
	})
}

// Livez handles GET /livez - liveness probe.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 while shutting down or when a dependency is unreachable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, response)
}

// ListTools handles GET /internal/tools
func (h *Handler) ListTools(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.tools.List())
}

// InvokeTool handles POST /internal/tools/{name}
func (h *Handler) InvokeTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req ToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	output, err := h.tools.Invoke(r.Context(), name, req.Input)
	if errors.Is(err, tools.ErrUnknownTool) {
		h.writeError(w, http.StatusNotFound, "Tool not found", "No tool named "+strconv.Quote(name))
		return
	}
	if h.metrics != nil {
		h.metrics.RecordToolInvocation(r.Context(), name, err == nil)
	}
	if err != nil {
		h.logger.Warn("Tool failed", "tool", name, "error", err)
		h.writeError(w, http.StatusBadGateway, err.Error(), "")
		return
	}

	h.writeJSON(w, http.StatusOK, ToolResponse{Tool: name, Output: output})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, label, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: label, Message: message})
}

// handleError maps service errors to status codes. clientLabel titles 4xx
// responses and serverLabel titles 5xx ones.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, clientLabel, serverLabel string) {
	status := apperrors.HTTPStatus(err)
	label := clientLabel
	if status >= 500 {
		label = serverLabel
		h.logger.Error("Request failed", "error", err, "path", r.URL.Path, "status", status)
	} else {
		h.logger.Debug("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, label, err.Error())
}
