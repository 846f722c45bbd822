package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/moderation"
	"github.com/hushapp/anonid/pkg/secerrors"
)

// ModerationHandler handles verdict ingestion and device sanctions
type ModerationHandler struct {
	moderationService *moderation.ModerationService
}

// NewModerationHandler creates a new moderation handler
func NewModerationHandler(moderationService *moderation.ModerationService) *ModerationHandler {
	return &ModerationHandler{
		moderationService: moderationService,
	}
}

// VerdictRequest represents a classification verdict to ingest. The verdict
// is attributed to the device resolved from the request, never to a device
// named in the body.
type VerdictRequest struct {
	ContentID  string   `json:"content_id"`
	IsFlagged  bool     `json:"is_flagged"`
	Confidence float64  `json:"confidence"`
	IssueKinds []string `json:"issue_kinds,omitempty"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// RecordVerdict handles POST /verdicts
func (h *ModerationHandler) RecordVerdict(w http.ResponseWriter, r *http.Request) {
	origin, _ := device.FromContext(r.Context())

	var req VerdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid request body"})
		return
	}
	if req.ContentID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Content id is required"})
		return
	}

	err := h.moderationService.RecordVerdict(r.Context(), origin, moderation.Verdict{
		ContentID:  req.ContentID,
		IsFlagged:  req.IsFlagged,
		Confidence: req.Confidence,
		IssueKinds: req.IssueKinds,
	})
	if err != nil {
		slog.Error("Failed to record verdict", "contentID", req.ContentID, "error", err)
		renderError(w, r, err, "Failed to record verdict")
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "Verdict recorded"})
}

// RevokeDevice handles POST /devices/{device_id}/revoke. Admin only.
func (h *ModerationHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())
	targetDeviceID := chi.URLParam(r, "device_id")

	if _, err := h.moderationService.RevokeDevice(r.Context(), actor, targetDeviceID); err != nil {
		renderError(w, r, err, "Failed to revoke device")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "Device revoked"})
}

// ReinstateDevice handles POST /devices/{device_id}/reinstate. Admin only.
func (h *ModerationHandler) ReinstateDevice(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())
	targetDeviceID := chi.URLParam(r, "device_id")

	if _, err := h.moderationService.ReinstateDevice(r.Context(), actor, targetDeviceID); err != nil {
		renderError(w, r, err, "Failed to reinstate device")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "Device reinstated"})
}

// ListFlags handles GET /flags. Admin only.
func (h *ModerationHandler) ListFlags(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	flagged, err := h.moderationService.FlaggedEvents(r.Context(), actor, limit)
	if err != nil {
		renderError(w, r, err, "Failed to list flags")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]interface{}{
		"flags": flagged,
		"total": len(flagged),
	})
}

// Handler returns a http.Handler for the moderation API
func Handler(h *ModerationHandler) http.Handler {
	r := chi.NewRouter()

	r.Post("/verdicts", h.RecordVerdict)
	r.Post("/devices/{device_id}/revoke", h.RevokeDevice)
	r.Post("/devices/{device_id}/reinstate", h.ReinstateDevice)
	r.Get("/flags", h.ListFlags)

	return r
}

func renderError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var serr *secerrors.Error
	if errors.As(err, &serr) {
		render.Status(r, serr.HTTPStatusCode())
		render.JSON(w, r, ErrorResponse{Status: "error", Message: serr.Message, Code: string(serr.Code)})
		return
	}
	slog.Error("Moderation API internal error", "error", err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{Status: "error", Message: fallback})
}
