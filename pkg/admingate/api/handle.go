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
	"github.com/hushapp/anonid/pkg/admingate"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/secerrors"
)

// GateHandler handles HTTP requests for admin grant management
type GateHandler struct {
	gateService *admingate.GateService
}

// NewGateHandler creates a new admin gate handler
func NewGateHandler(gateService *admingate.GateService) *GateHandler {
	return &GateHandler{
		gateService: gateService,
	}
}

// AdminStatusResponse answers "is the caller an admin"
type AdminStatusResponse struct {
	IsAdmin   bool   `json:"is_admin"`
	ProfileID string `json:"profile_id,omitempty"`
}

// GrantRequest represents the request to grant the admin role
type GrantRequest struct {
	ProfileID string `json:"profile_id"`
}

// GrantResponse represents a single grant
type GrantResponse struct {
	ProfileID string `json:"profile_id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListGrantsResponse wraps the grant listing with the capacity ceiling
type ListGrantsResponse struct {
	Grants   []GrantResponse `json:"grants"`
	Capacity int             `json:"capacity"`
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

// GetMe handles GET /me. Non-admins get a plain false, never an error; the
// profile ID comes from the resolved identity only.
func (h *GateHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	d, ok := device.FromContext(r.Context())
	if !ok || d.Anonymous() || !d.HasProfile() || d.IsRevoked {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, AdminStatusResponse{IsAdmin: false})
		return
	}

	isAdmin, err := h.gateService.IsAdmin(r.Context(), d.ProfileID.UUID)
	if err != nil {
		slog.Error("Failed to check admin status", "profileID", d.ProfileID.UUID, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Failed to check admin status"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, AdminStatusResponse{IsAdmin: isAdmin, ProfileID: d.ProfileID.UUID.String()})
}

// ListGrants handles GET /grants. Admin only.
func (h *GateHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())
	if err := h.gateService.Authorize(r.Context(), actor, "list_grants"); err != nil {
		renderError(w, r, err, "Not authorized to list grants")
		return
	}

	grants, err := h.gateService.FindGrants(r.Context())
	if err != nil {
		slog.Error("Failed to list grants", "error", err)
		renderError(w, r, err, "Failed to list grants")
		return
	}

	resp := ListGrantsResponse{Grants: make([]GrantResponse, 0, len(grants)), Capacity: h.gateService.Capacity()}
	for _, g := range grants {
		resp.Grants = append(resp.Grants, toGrantResponse(g))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// Grant handles POST /grants. Regranting an existing holder is idempotent
// and reported as success.
func (h *GateHandler) Grant(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid request body"})
		return
	}
	targetProfileID, err := uuid.Parse(req.ProfileID)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid profile id"})
		return
	}

	grant, err := h.gateService.Grant(r.Context(), actor, targetProfileID)
	if err != nil {
		if errors.Is(err, secerrors.ErrAlreadyGranted) {
			render.Status(r, http.StatusOK)
			render.JSON(w, r, toGrantResponse(grant))
			return
		}
		renderError(w, r, err, "Failed to grant admin role")
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toGrantResponse(grant))
}

// Revoke handles DELETE /grants/{profile_id}. Admin only.
func (h *GateHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())

	targetProfileID, err := uuid.Parse(chi.URLParam(r, "profile_id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid profile id"})
		return
	}

	if err := h.gateService.Revoke(r.Context(), actor, targetProfileID); err != nil {
		renderError(w, r, err, "Failed to revoke admin role")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SuccessResponse{Status: "success", Message: "Admin role revoked"})
}

// Handler returns a http.Handler for the admin gate API
func Handler(h *GateHandler) http.Handler {
	r := chi.NewRouter()

	r.Get("/me", h.GetMe)
	r.Get("/grants", h.ListGrants)
	r.Post("/grants", h.Grant)
	r.Delete("/grants/{profile_id}", h.Revoke)

	return r
}

func toGrantResponse(g admingate.AdminGrant) GrantResponse {
	return GrantResponse{
		ProfileID: g.ProfileID.String(),
		Role:      g.Role,
		CreatedAt: g.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: g.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func renderError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var serr *secerrors.Error
	if errors.As(err, &serr) {
		render.Status(r, serr.HTTPStatusCode())
		render.JSON(w, r, ErrorResponse{Status: "error", Message: serr.Message, Code: string(serr.Code)})
		return
	}
	slog.Error("Admin gate API internal error", "error", err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{Status: "error", Message: fallback})
}
