package linkpin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// LinkPin is the stored form of an issued PIN. The plaintext value is never
// persisted - only the keyed hash.
type LinkPin struct {
	ID                 uuid.UUID `json:"id"`
	PinHash            string    `json:"-"`
	CreatedByDeviceID  string    `json:"created_by_device_id"`
	CreatedByProfileID uuid.UUID `json:"created_by_profile_id"`
	CreatedAt          time.Time `json:"created_at"`
	ExpiresAt          time.Time `json:"expires_at"`
	RedeemedAt         time.Time `json:"redeemed_at,omitempty"` // Zero until redeemed
	IsActive           bool      `json:"is_active"`
}

// IsExpired checks whether the pin's TTL has lapsed
func (p *LinkPin) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Redeemable reports whether the pin can still be redeemed at now
func (p *LinkPin) Redeemable(now time.Time) bool {
	return p.IsActive && p.RedeemedAt.IsZero() && !p.IsExpired(now)
}

var (
	ErrPinNotFound = errors.New("link pin not found")

	// ErrPinAlreadyClaimed is returned by ClaimPin when another redeemer
	// won the race (or the pin was otherwise terminated first).
	ErrPinAlreadyClaimed = errors.New("link pin already claimed")
)

// LinkPinRepository defines the interface for link pin storage.
// ClaimPin is the linearization point of the protocol: it must atomically
// set redeemed_at on an unredeemed pin and fail for every later caller.
type LinkPinRepository interface {
	// CreatePin persists a new pin
	CreatePin(ctx context.Context, pin LinkPin) (LinkPin, error)

	// FindCandidatePins returns active, unredeemed pins (including expired
	// ones - the service distinguishes expiry so the audit trail can name
	// the precise failure reason)
	FindCandidatePins(ctx context.Context) ([]LinkPin, error)

	// ClaimPin atomically marks the pin redeemed. Exactly one caller per
	// pin ever succeeds; the rest get ErrPinAlreadyClaimed.
	ClaimPin(ctx context.Context, pinID uuid.UUID, redeemedAt time.Time) (LinkPin, error)

	// DeactivatePin revokes a pin. Scoped to its creator device.
	DeactivatePin(ctx context.Context, pinID uuid.UUID, createdByDeviceID string) error

	// FindPinsByCreator returns all pins issued by a device, newest first
	FindPinsByCreator(ctx context.Context, deviceID string) ([]LinkPin, error)

	// PurgeExpired deletes pins that expired before the cutoff and were
	// never redeemed. Housekeeping only; redeemed pins stay for audit
	// cross-reference.
	PurgeExpired(ctx context.Context, before time.Time) (int, error)
}
