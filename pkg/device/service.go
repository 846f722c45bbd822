package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DeviceService handles device resolution and registration
type DeviceService struct {
	deviceRepository DeviceRepository
}

// NewDeviceService creates a new device service with the given repository
func NewDeviceService(deviceRepository DeviceRepository) *DeviceService {
	return &DeviceService{
		deviceRepository: deviceRepository,
	}
}

// ResolveMeta carries advisory request metadata recorded alongside the
// resolution. It never participates in identity decisions.
type ResolveMeta struct {
	UserAgent string
	IPAddress string
}

// Resolve turns an untrusted transport-level token into a trusted Device via
// an atomic resolve-or-create upsert.
//
// An empty token yields the anonymous Device, not an error. A store failure
// also degrades to anonymous: resolution is never fatal to the caller, and
// upstream features decide whether anonymous access is permitted. Revoked
// devices resolve normally so their activity stays attributable; callers
// must check IsRevoked before any privileged action.
func (s *DeviceService) Resolve(ctx context.Context, token string, meta ResolveMeta) (Device, error) {
	if token == "" {
		return Device{}, nil
	}

	d, err := s.deviceRepository.UpsertDevice(ctx, UpsertDeviceParams{
		DeviceID:  token,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		SeenAt:    time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Device resolution degraded to anonymous", "err", err)
		return Device{}, nil
	}

	if d.IsRevoked {
		slog.Warn("Resolved revoked device", "deviceID", d.DeviceID)
	}
	return d, nil
}

// GetDevice retrieves a device by its token
func (s *DeviceService) GetDevice(ctx context.Context, deviceID string) (Device, error) {
	return s.deviceRepository.GetDevice(ctx, deviceID)
}

// BindProfile binds a device to a profile. The first persisted binding wins;
// binding to the same profile again is a no-op.
func (s *DeviceService) BindProfile(ctx context.Context, deviceID string, profileID uuid.UUID) (Device, error) {
	d, err := s.deviceRepository.BindProfile(ctx, deviceID, profileID)
	if err != nil {
		return d, fmt.Errorf("failed to bind profile to device: %w", err)
	}
	slog.Info("Device bound to profile", "deviceID", deviceID, "profileID", profileID)
	return d, nil
}

// FindDevices returns all devices in the system
func (s *DeviceService) FindDevices(ctx context.Context) ([]Device, error) {
	devices, err := s.deviceRepository.FindDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices: %w", err)
	}
	return devices, nil
}

// FindDevicesByProfile returns all devices bound to a specific profile
func (s *DeviceService) FindDevicesByProfile(ctx context.Context, profileID uuid.UUID) ([]Device, error) {
	devices, err := s.deviceRepository.FindDevicesByProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices for profile: %w", err)
	}
	return devices, nil
}
