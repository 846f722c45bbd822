package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/hushapp/anonid/pkg/admingate"
	"github.com/hushapp/anonid/pkg/audit"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/secerrors"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	defaultWindow     = 24 * time.Hour
)

// AuditHandler serves the security event trail to admins
type AuditHandler struct {
	auditService *audit.Service
	gateService  *admingate.GateService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService *audit.Service, gateService *admingate.GateService) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		gateService:  gateService,
	}
}

// ListEventsResponse wraps an event listing
type ListEventsResponse struct {
	Events []audit.SecurityEvent `json:"events"`
	Total  int                   `json:"total"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ListEvents handles GET /events
func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())
	if err := h.gateService.Authorize(r.Context(), actor, "read_audit"); err != nil {
		renderError(w, r, err, "Not authorized to read the audit trail")
		return
	}

	events, err := h.auditService.Recent(r.Context(), parseLimit(r))
	if err != nil {
		slog.Error("Failed to list audit events", "error", err)
		renderError(w, r, err, "Failed to list events")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListEventsResponse{Events: events, Total: len(events)})
}

// GetSummary handles GET /summary. The window query parameter takes a Go
// duration string, for example "1h" or "30m".
func (h *AuditHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())
	if err := h.gateService.Authorize(r.Context(), actor, "read_audit"); err != nil {
		renderError(w, r, err, "Not authorized to read the audit trail")
		return
	}

	window := defaultWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid window duration"})
			return
		}
		window = parsed
	}

	summary, err := h.auditService.Summarize(r.Context(), window)
	if err != nil {
		slog.Error("Failed to summarize audit events", "error", err)
		renderError(w, r, err, "Failed to summarize events")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, summary)
}

// GetDeviceEvents handles GET /devices/{device_id}/events
func (h *AuditHandler) GetDeviceEvents(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())
	if err := h.gateService.Authorize(r.Context(), actor, "read_audit"); err != nil {
		renderError(w, r, err, "Not authorized to read the audit trail")
		return
	}

	deviceID := chi.URLParam(r, "device_id")
	events, err := h.auditService.ForDevice(r.Context(), deviceID, parseLimit(r))
	if err != nil {
		slog.Error("Failed to list device audit events", "deviceID", deviceID, "error", err)
		renderError(w, r, err, "Failed to list events")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListEventsResponse{Events: events, Total: len(events)})
}

// Handler returns a http.Handler for the audit API
func Handler(h *AuditHandler) http.Handler {
	r := chi.NewRouter()

	r.Get("/events", h.ListEvents)
	r.Get("/summary", h.GetSummary)
	r.Get("/devices/{device_id}/events", h.GetDeviceEvents)

	return r
}

func parseLimit(r *http.Request) int {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxEventLimit)
		}
	}
	return limit
}

func renderError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var serr *secerrors.Error
	if errors.As(err, &serr) {
		render.Status(r, serr.HTTPStatusCode())
		render.JSON(w, r, ErrorResponse{Status: "error", Message: serr.Message, Code: string(serr.Code)})
		return
	}
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{Status: "error", Message: fallback})
}
