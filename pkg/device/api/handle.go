package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/hushapp/anonid/pkg/admingate"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/profile"
	"github.com/jinzhu/copier"
)

// DeviceHandler handles HTTP requests for device identity
type DeviceHandler struct {
	deviceService *device.DeviceService
	binderService *profile.BinderService
	gateService   *admingate.GateService
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(deviceService *device.DeviceService, binderService *profile.BinderService, gateService *admingate.GateService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		binderService: binderService,
		gateService:   gateService,
	}
}

// DeviceResponse is the wire shape of a device. Counters and flags are
// included; the failure window bookkeeping is not.
type DeviceResponse struct {
	DeviceID     string `json:"device_id"`
	ProfileID    string `json:"profile_id,omitempty"`
	FirstSeenAt  string `json:"first_seen_at,omitempty"`
	LastSeenAt   string `json:"last_seen_at,omitempty"`
	RequestCount int64  `json:"request_count"`
	IsSuspicious bool   `json:"is_suspicious"`
	IsRevoked    bool   `json:"is_revoked"`
	UserAgent    string `json:"user_agent,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
}

// MeResponse describes the caller's own resolved identity
type MeResponse struct {
	Anonymous bool             `json:"anonymous"`
	Device    *DeviceResponse  `json:"device,omitempty"`
	Profile   *profile.Profile `json:"profile,omitempty"`
}

// ListDevicesResponse wraps the admin device listing
type ListDevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Total   int              `json:"total"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// GetMe handles GET /me. Anonymous callers get a valid response, not an
// error; identity comes only from the resolution middleware.
func (h *DeviceHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	d, ok := device.FromContext(r.Context())
	if !ok || d.Anonymous() {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, MeResponse{Anonymous: true})
		return
	}

	resp := MeResponse{Device: toDeviceResponse(d)}
	p, err := h.binderService.ProfileForDevice(r.Context(), d)
	if err != nil {
		slog.Error("Failed to load bound profile", "deviceID", d.DeviceID, "error", err)
	} else {
		resp.Profile = p
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// ListDevices handles GET /. Admin only.
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())
	if err := h.gateService.Authorize(r.Context(), actor, "list_devices"); err != nil {
		renderError(w, r, err, "Not authorized to list devices")
		return
	}

	devices, err := h.deviceService.FindDevices(r.Context())
	if err != nil {
		slog.Error("Failed to list devices", "error", err)
		renderError(w, r, err, "Failed to list devices")
		return
	}

	resp := ListDevicesResponse{Devices: make([]DeviceResponse, 0, len(devices)), Total: len(devices)}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, *toDeviceResponse(d))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// GetDevice handles GET /{device_id}. Admin only.
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())
	if err := h.gateService.Authorize(r.Context(), actor, "get_device"); err != nil {
		renderError(w, r, err, "Not authorized to inspect devices")
		return
	}

	deviceID := chi.URLParam(r, "device_id")
	d, err := h.deviceService.GetDevice(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Status: "error", Message: "Device not found"})
			return
		}
		slog.Error("Failed to get device", "deviceID", deviceID, "error", err)
		renderError(w, r, err, "Failed to get device")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toDeviceResponse(d))
}

// GetDevicesByProfile handles GET /profile/{profile_id}. Admin only.
func (h *DeviceHandler) GetDevicesByProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := device.FromContext(r.Context())
	if err := h.gateService.Authorize(r.Context(), actor, "list_devices"); err != nil {
		renderError(w, r, err, "Not authorized to list devices")
		return
	}

	profileID, err := uuid.Parse(chi.URLParam(r, "profile_id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid profile id"})
		return
	}

	devices, err := h.deviceService.FindDevicesByProfile(r.Context(), profileID)
	if err != nil {
		slog.Error("Failed to list devices by profile", "profileID", profileID, "error", err)
		renderError(w, r, err, "Failed to list devices")
		return
	}

	resp := ListDevicesResponse{Devices: make([]DeviceResponse, 0, len(devices)), Total: len(devices)}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, *toDeviceResponse(d))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// Handler returns a http.Handler for the device API
func Handler(h *DeviceHandler) http.Handler {
	r := chi.NewRouter()

	r.Get("/me", h.GetMe)
	r.Get("/", h.ListDevices)
	r.Get("/{device_id}", h.GetDevice)
	r.Get("/profile/{profile_id}", h.GetDevicesByProfile)

	return r
}

func toDeviceResponse(d device.Device) *DeviceResponse {
	var resp DeviceResponse
	if err := copier.Copy(&resp, &d); err != nil {
		slog.Error("Failed to map device response", "error", err)
	}
	if d.HasProfile() {
		resp.ProfileID = d.ProfileID.UUID.String()
	}
	if !d.FirstSeenAt.IsZero() {
		resp.FirstSeenAt = d.FirstSeenAt.UTC().Format(timeFormat)
	}
	if !d.LastSeenAt.IsZero() {
		resp.LastSeenAt = d.LastSeenAt.UTC().Format(timeFormat)
	}
	return &resp
}
