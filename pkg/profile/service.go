package profile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hushapp/anonid/pkg/device"
)

// BinderService associates devices with profiles. It is the only component
// that turns a resolved device into a user-facing identity; nothing here
// ever accepts a profile ID from request input.
type BinderService struct {
	profileRepository ProfileRepository
	deviceService     *device.DeviceService
}

// NewBinderService creates a new binder service
func NewBinderService(profileRepository ProfileRepository, deviceService *device.DeviceService) *BinderService {
	return &BinderService{
		profileRepository: profileRepository,
		deviceService:     deviceService,
	}
}

// ProfileForDevice returns the profile bound to the resolved device, or nil
// when the device is anonymous or unbound
func (s *BinderService) ProfileForDevice(ctx context.Context, d device.Device) (*Profile, error) {
	if d.Anonymous() || !d.HasProfile() {
		return nil, nil
	}

	p, err := s.profileRepository.GetProfileById(ctx, d.ProfileID.UUID)
	if err != nil {
		slog.Error("Failed to load profile for device", "deviceID", d.DeviceID, "profileID", d.ProfileID.UUID, "err", err)
		return nil, fmt.Errorf("failed to load profile for device: %w", err)
	}
	return &p, nil
}

// Bind binds a device to a profile (first-writer-wins). Used by onboarding
// and by PIN redemption.
func (s *BinderService) Bind(ctx context.Context, deviceID string, profileID uuid.UUID) (device.Device, error) {
	if _, err := s.profileRepository.GetProfileById(ctx, profileID); err != nil {
		return device.Device{}, fmt.Errorf("cannot bind unknown profile: %w", err)
	}
	return s.deviceService.BindProfile(ctx, deviceID, profileID)
}

// GetProfile retrieves a profile by ID
func (s *BinderService) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	return s.profileRepository.GetProfileById(ctx, id)
}
