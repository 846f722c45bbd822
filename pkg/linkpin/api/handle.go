package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/linkpin"
	"github.com/hushapp/anonid/pkg/profile"
	"github.com/hushapp/anonid/pkg/secerrors"
	"github.com/hushapp/anonid/pkg/suspicion"
)

// LinkHandler handles HTTP requests for the cross-device link protocol
type LinkHandler struct {
	linkService *linkpin.LinkService
	scorer      *suspicion.Scorer
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(linkService *linkpin.LinkService, scorer *suspicion.Scorer) *LinkHandler {
	return &LinkHandler{
		linkService: linkService,
		scorer:      scorer,
	}
}

// IssuePinResponse carries the one-time plaintext. It is never persisted and
// never shown again.
type IssuePinResponse struct {
	Pin       string `json:"pin"`
	PinID     string `json:"pin_id"`
	ExpiresAt string `json:"expires_at"`
}

// RedeemRequest represents the redemption attempt body
type RedeemRequest struct {
	Pin string `json:"pin"`
}

// RedeemResponse returns the newly linked profile
type RedeemResponse struct {
	Status  string          `json:"status"`
	Profile profile.Profile `json:"profile"`
}

// PinSummary is the creator-facing view of an issued pin
type PinSummary struct {
	PinID      string `json:"pin_id"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
	RedeemedAt string `json:"redeemed_at,omitempty"`
	IsActive   bool   `json:"is_active"`
}

// ListPinsResponse wraps the creator's pin listing
type ListPinsResponse struct {
	Pins []PinSummary `json:"pins"`
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

// IssuePin handles POST /pins
func (h *LinkHandler) IssuePin(w http.ResponseWriter, r *http.Request) {
	creator, _ := device.FromContext(r.Context())

	plaintext, pin, err := h.linkService.IssuePin(r.Context(), creator)
	if err != nil {
		renderError(w, r, err, "Failed to issue pin")
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, IssuePinResponse{
		Pin:       plaintext,
		PinID:     pin.ID.String(),
		ExpiresAt: pin.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Redeem handles POST /redeem. Every failure looks identical on the wire;
// each one also feeds the redeemer's suspicion score.
func (h *LinkHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	redeemer, _ := device.FromContext(r.Context())

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid request body"})
		return
	}
	if req.Pin == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Pin is required"})
		return
	}

	linked, err := h.linkService.Redeem(r.Context(), redeemer, req.Pin)
	if err != nil {
		if errors.Is(err, secerrors.ErrInvalidOrExpiredPin) {
			if serr := h.scorer.RecordOutcome(r.Context(), redeemer, suspicion.OutcomeAuthFailure); serr != nil {
				slog.Error("Failed to score redemption failure", "deviceID", redeemer.DeviceID, "error", serr)
			}
		}
		renderError(w, r, err, "Failed to redeem pin")
		return
	}

	if serr := h.scorer.RecordOutcome(r.Context(), redeemer, suspicion.OutcomeSuccess); serr != nil {
		slog.Error("Failed to score redemption success", "deviceID", redeemer.DeviceID, "error", serr)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, RedeemResponse{Status: "success", Profile: linked})
}

// RevokePin handles DELETE /pins/{pin_id}
func (h *LinkHandler) RevokePin(w http.ResponseWriter, r *http.Request) {
	creator, _ := device.FromContext(r.Context())

	pinID, err := uuid.Parse(chi.URLParam(r, "pin_id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid pin id"})
		return
	}

	if err := h.linkService.RevokePin(r.Context(), creator, pinID); err != nil {
		renderError(w, r, err, "Failed to revoke pin")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "Pin revoked"})
}

// ListPins handles GET /pins
func (h *LinkHandler) ListPins(w http.ResponseWriter, r *http.Request) {
	creator, _ := device.FromContext(r.Context())

	pins, err := h.linkService.PinsForCreator(r.Context(), creator)
	if err != nil {
		renderError(w, r, err, "Failed to list pins")
		return
	}

	resp := ListPinsResponse{Pins: make([]PinSummary, 0, len(pins))}
	for _, p := range pins {
		summary := PinSummary{
			PinID:     p.ID.String(),
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
			ExpiresAt: p.ExpiresAt.UTC().Format(time.RFC3339),
			IsActive:  p.IsActive,
		}
		if !p.RedeemedAt.IsZero() {
			summary.RedeemedAt = p.RedeemedAt.UTC().Format(time.RFC3339)
		}
		resp.Pins = append(resp.Pins, summary)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// Handler returns a http.Handler for the link API. Middlewares passed here
// wrap only the redeem route, which carries its own stricter rate limit.
func Handler(h *LinkHandler, redeemMiddlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Post("/pins", h.IssuePin)
	r.Get("/pins", h.ListPins)
	r.Delete("/pins/{pin_id}", h.RevokePin)
	r.With(redeemMiddlewares...).Post("/redeem", h.Redeem)

	return r
}

func renderError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var serr *secerrors.Error
	if errors.As(err, &serr) {
		render.Status(r, serr.HTTPStatusCode())
		render.JSON(w, r, ErrorResponse{Status: "error", Message: serr.Message, Code: string(serr.Code)})
		return
	}
	slog.Error("Link API internal error", "error", err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{Status: "error", Message: fallback})
}
