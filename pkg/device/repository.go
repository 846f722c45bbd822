package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Device is the identity anchor. A row is created lazily on the first request
// bearing an unseen token and is never hard-deleted; revocation is a flag so
// audit continuity survives.
type Device struct {
	DeviceID        string        `json:"device_id"` // Opaque token, stable per client installation
	ProfileID       uuid.NullUUID `json:"profile_id"`
	FirstSeenAt     time.Time     `json:"first_seen_at"`
	LastSeenAt      time.Time     `json:"last_seen_at"`
	RequestCount    int64         `json:"request_count"`
	FailedAuthCount int           `json:"failed_auth_count"`
	IsSuspicious    bool          `json:"is_suspicious"`
	IsRevoked       bool          `json:"is_revoked"`
	UserAgent       string        `json:"user_agent"`
	IPAddress       string        `json:"ip_address"` // Best effort, advisory only

	// FailureWindowStart anchors the fixed window failed_auth_count is
	// evaluated over. Zero until the first failure.
	FailureWindowStart time.Time `json:"-"`
}

// Anonymous reports whether this is the "no device" result of resolving an
// empty or unknown token. Callers must treat it as no identity, never as an
// authenticated empty identity.
func (d Device) Anonymous() bool {
	return d.DeviceID == ""
}

// HasProfile reports whether the device is bound to a profile
func (d Device) HasProfile() bool {
	return d.ProfileID.Valid
}

var (
	ErrDeviceNotFound = errors.New("device not found")

	// ErrProfileConflict is returned by BindProfile when the device is
	// already bound to a different profile. The persisted binding wins.
	ErrProfileConflict = errors.New("device already bound to a different profile")
)

// UpsertDeviceParams carries the advisory request metadata recorded on every
// resolution
type UpsertDeviceParams struct {
	DeviceID  string
	UserAgent string
	IPAddress string
	SeenAt    time.Time
}

// DeviceRepository defines the interface for device storage operations.
// Devices are never deleted.
type DeviceRepository interface {
	// UpsertDevice atomically inserts the device if absent, otherwise
	// updates last_seen_at and increments request_count. Two concurrent
	// first-contact calls for the same token must produce exactly one row
	// and exactly two counted requests. A conflict never touches the
	// persisted profile_id.
	UpsertDevice(ctx context.Context, params UpsertDeviceParams) (Device, error)

	// GetDevice retrieves a device by its token
	GetDevice(ctx context.Context, deviceID string) (Device, error)

	// BindProfile sets profile_id if and only if it is currently unset
	// (first-writer-wins). When the device is already bound to a different
	// profile it returns the device as persisted plus ErrProfileConflict.
	BindProfile(ctx context.Context, deviceID string, profileID uuid.UUID) (Device, error)

	// IncrementFailedAuth bumps failed_auth_count within the fixed window,
	// resetting the count when the window has lapsed, and returns the new
	// count. The reset-or-increment is atomic.
	IncrementFailedAuth(ctx context.Context, deviceID string, now time.Time, window time.Duration) (int, error)

	// SetSuspicious flips the soft suspicion flag
	SetSuspicious(ctx context.Context, deviceID string, suspicious bool) (Device, error)

	// SetRevoked flips the hard revocation flag. Revocation is sticky: it
	// is only ever changed through this explicit administrative call.
	SetRevoked(ctx context.Context, deviceID string, revoked bool) (Device, error)

	// FindDevices returns all devices
	FindDevices(ctx context.Context) ([]Device, error)

	// FindDevicesByProfile returns all devices bound to a profile
	FindDevicesByProfile(ctx context.Context, profileID uuid.UUID) ([]Device, error)
}
