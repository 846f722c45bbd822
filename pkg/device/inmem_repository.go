package device

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemDeviceRepository implements DeviceRepository using an in-memory map.
// One mutex guards all state, so every method is atomic as a whole; the
// concurrency invariants (single row per token, first-writer-wins binding)
// fall out of that.
type InMemDeviceRepository struct {
	devices map[string]Device
	mu      sync.Mutex
}

// NewInMemDeviceRepository creates a new in-memory device repository
func NewInMemDeviceRepository() *InMemDeviceRepository {
	return &InMemDeviceRepository{
		devices: make(map[string]Device),
	}
}

// UpsertDevice inserts the device if absent, otherwise touches counters
func (r *InMemDeviceRepository) UpsertDevice(ctx context.Context, params UpsertDeviceParams) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seenAt := params.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	d, exists := r.devices[params.DeviceID]
	if !exists {
		d = Device{
			DeviceID:     params.DeviceID,
			FirstSeenAt:  seenAt,
			LastSeenAt:   seenAt,
			RequestCount: 1,
			UserAgent:    params.UserAgent,
			IPAddress:    params.IPAddress,
		}
		r.devices[params.DeviceID] = d
		slog.Debug("Device created", "deviceID", params.DeviceID)
		return d, nil
	}

	d.LastSeenAt = seenAt
	d.RequestCount++
	d.UserAgent = params.UserAgent
	d.IPAddress = params.IPAddress
	r.devices[params.DeviceID] = d
	return d, nil
}

// GetDevice retrieves a device by its token
func (r *InMemDeviceRepository) GetDevice(ctx context.Context, deviceID string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.devices[deviceID]
	if !exists {
		return Device{}, ErrDeviceNotFound
	}
	return d, nil
}

// BindProfile sets profile_id if currently unset (first-writer-wins)
func (r *InMemDeviceRepository) BindProfile(ctx context.Context, deviceID string, profileID uuid.UUID) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.devices[deviceID]
	if !exists {
		return Device{}, ErrDeviceNotFound
	}

	if d.ProfileID.Valid {
		if d.ProfileID.UUID == profileID {
			return d, nil
		}
		slog.Debug("Profile binding kept, first writer wins", "deviceID", deviceID, "boundProfile", d.ProfileID.UUID)
		return d, ErrProfileConflict
	}

	d.ProfileID = uuid.NullUUID{UUID: profileID, Valid: true}
	r.devices[deviceID] = d
	return d, nil
}

// IncrementFailedAuth bumps the failure counter within the fixed window
func (r *InMemDeviceRepository) IncrementFailedAuth(ctx context.Context, deviceID string, now time.Time, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.devices[deviceID]
	if !exists {
		return 0, ErrDeviceNotFound
	}

	if d.FailureWindowStart.IsZero() || now.Sub(d.FailureWindowStart) > window {
		d.FailureWindowStart = now
		d.FailedAuthCount = 1
	} else {
		d.FailedAuthCount++
	}
	r.devices[deviceID] = d
	return d.FailedAuthCount, nil
}

// SetSuspicious flips the soft suspicion flag
func (r *InMemDeviceRepository) SetSuspicious(ctx context.Context, deviceID string, suspicious bool) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.devices[deviceID]
	if !exists {
		return Device{}, ErrDeviceNotFound
	}
	d.IsSuspicious = suspicious
	r.devices[deviceID] = d
	return d, nil
}

// SetRevoked flips the hard revocation flag
func (r *InMemDeviceRepository) SetRevoked(ctx context.Context, deviceID string, revoked bool) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, exists := r.devices[deviceID]
	if !exists {
		return Device{}, ErrDeviceNotFound
	}
	d.IsRevoked = revoked
	r.devices[deviceID] = d
	return d, nil
}

// FindDevices returns all devices
func (r *InMemDeviceRepository) FindDevices(ctx context.Context) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	return devices, nil
}

// FindDevicesByProfile returns all devices bound to a profile
func (r *InMemDeviceRepository) FindDevicesByProfile(ctx context.Context, profileID uuid.UUID) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var devices []Device
	for _, d := range r.devices {
		if d.ProfileID.Valid && d.ProfileID.UUID == profileID {
			devices = append(devices, d)
		}
	}
	return devices, nil
}
