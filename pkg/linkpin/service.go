package linkpin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hushapp/anonid/pkg/audit"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/profile"
	"github.com/hushapp/anonid/pkg/secerrors"
)

const (
	DefaultPinLength = 6
	DefaultPinTTL    = 5 * time.Minute
)

// LinkService implements the issue/redeem handshake
type LinkService struct {
	pinRepository LinkPinRepository
	binder        *profile.BinderService
	auditService  *audit.Service
	hasher        *Hasher
	pinLength     int
	pinTTL        time.Duration
	now           func() time.Time
}

// Option configures a LinkService
type Option func(*LinkService)

// WithPinLength sets the number of digits in issued PINs
func WithPinLength(length int) Option {
	return func(s *LinkService) { s.pinLength = length }
}

// WithPinTTL sets how long an issued PIN stays redeemable
func WithPinTTL(ttl time.Duration) Option {
	return func(s *LinkService) { s.pinTTL = ttl }
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(s *LinkService) { s.now = now }
}

// NewLinkService creates a new link service
func NewLinkService(pinRepository LinkPinRepository, binder *profile.BinderService, auditService *audit.Service, hasher *Hasher, opts ...Option) *LinkService {
	s := &LinkService{
		pinRepository: pinRepository,
		binder:        binder,
		auditService:  auditService,
		hasher:        hasher,
		pinLength:     DefaultPinLength,
		pinTTL:        DefaultPinTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssuePin creates a new link PIN for the creator device's profile. The
// plaintext is returned exactly once and never persisted; the store holds
// only the keyed hash. Multiple active PINs from one creator are all
// individually valid.
func (s *LinkService) IssuePin(ctx context.Context, creator device.Device) (string, LinkPin, error) {
	if creator.IsRevoked {
		slog.Warn("Pin issue refused for revoked device", "deviceID", creator.DeviceID)
		return "", LinkPin{}, secerrors.ErrDeviceRevoked
	}
	if creator.Anonymous() || !creator.HasProfile() {
		return "", LinkPin{}, secerrors.ErrProfileRequired
	}

	plaintext, err := GeneratePin(s.pinLength)
	if err != nil {
		return "", LinkPin{}, fmt.Errorf("failed to generate link pin: %w", err)
	}

	now := s.now()
	pin, err := s.pinRepository.CreatePin(ctx, LinkPin{
		PinHash:            s.hasher.Hash(plaintext),
		CreatedByDeviceID:  creator.DeviceID,
		CreatedByProfileID: creator.ProfileID.UUID,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.pinTTL),
		IsActive:           true,
	})
	if err != nil {
		return "", LinkPin{}, fmt.Errorf("failed to store link pin: %w", err)
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityInfo,
		Kind:      audit.KindPinIssued,
		DeviceID:  creator.DeviceID,
		ProfileID: creator.ProfileID,
		Metadata: map[string]interface{}{
			"pin_id":     pin.ID.String(),
			"expires_at": pin.ExpiresAt.Format(time.RFC3339),
		},
	})
	slog.Info("Link pin issued", "pinID", pin.ID, "deviceID", creator.DeviceID)
	return plaintext, pin, nil
}

// Redeem binds the redeemer device to the profile behind the submitted PIN.
//
// Wrong PIN, expired PIN, already-redeemed PIN, and a lost redemption race
// all return the same secerrors.ErrInvalidOrExpiredPin; the audit trail
// records which it actually was.
func (s *LinkService) Redeem(ctx context.Context, redeemer device.Device, submittedPin string) (profile.Profile, error) {
	if redeemer.IsRevoked {
		return profile.Profile{}, secerrors.ErrDeviceRevoked
	}
	if redeemer.Anonymous() {
		return profile.Profile{}, s.redeemFailed(ctx, redeemer, uuid.Nil, "anonymous_redeemer")
	}

	candidates, err := s.pinRepository.FindCandidatePins(ctx)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("failed to load candidate pins: %w", err)
	}

	// Compare against every candidate; no early exit on match, so timing
	// does not reveal whether or where a match occurred.
	now := s.now()
	var matched *LinkPin
	for i := range candidates {
		if s.hasher.Verify(submittedPin, candidates[i].PinHash) && matched == nil {
			matched = &candidates[i]
		}
	}

	if matched == nil {
		return profile.Profile{}, s.redeemFailed(ctx, redeemer, uuid.Nil, "no_match")
	}
	if matched.IsExpired(now) {
		return profile.Profile{}, s.redeemFailed(ctx, redeemer, matched.ID, "expired")
	}

	claimed, err := s.pinRepository.ClaimPin(ctx, matched.ID, now)
	if err != nil {
		if errors.Is(err, ErrPinAlreadyClaimed) || errors.Is(err, ErrPinNotFound) {
			return profile.Profile{}, s.redeemFailed(ctx, redeemer, matched.ID, "already_redeemed")
		}
		return profile.Profile{}, fmt.Errorf("failed to claim link pin: %w", err)
	}

	boundDevice, err := s.binder.Bind(ctx, redeemer.DeviceID, claimed.CreatedByProfileID)
	if err != nil {
		if errors.Is(err, device.ErrProfileConflict) {
			// First writer won; this device keeps its existing binding
			s.redeemFailed(ctx, redeemer, claimed.ID, "profile_conflict")
			return profile.Profile{}, secerrors.Wrap(err, secerrors.ErrCodeForbidden, "device is already bound to a profile")
		}
		return profile.Profile{}, fmt.Errorf("failed to bind redeemed profile: %w", err)
	}

	linked, err := s.binder.GetProfile(ctx, claimed.CreatedByProfileID)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("failed to load linked profile: %w", err)
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityInfo,
		Kind:      audit.KindDeviceLinked,
		DeviceID:  redeemer.DeviceID,
		ProfileID: boundDevice.ProfileID,
		Metadata: map[string]interface{}{
			"pin_id":            claimed.ID.String(),
			"created_by_device": claimed.CreatedByDeviceID,
		},
	})
	slog.Info("Device linked via pin", "pinID", claimed.ID, "redeemerDevice", redeemer.DeviceID)
	return linked, nil
}

// RevokePin deactivates a pin before its TTL. Only the issuing device may
// revoke it.
func (s *LinkService) RevokePin(ctx context.Context, creator device.Device, pinID uuid.UUID) error {
	if creator.IsRevoked {
		return secerrors.ErrDeviceRevoked
	}
	if creator.Anonymous() {
		return secerrors.ErrProfileRequired
	}

	if err := s.pinRepository.DeactivatePin(ctx, pinID, creator.DeviceID); err != nil {
		if errors.Is(err, ErrPinNotFound) {
			return secerrors.Wrap(err, secerrors.ErrCodeNotFound, "no such pin for this device")
		}
		return fmt.Errorf("failed to revoke pin: %w", err)
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityInfo,
		Kind:      audit.KindPinRevoked,
		DeviceID:  creator.DeviceID,
		ProfileID: creator.ProfileID,
		Metadata: map[string]interface{}{
			"pin_id": pinID.String(),
		},
	})
	return nil
}

// PinsForCreator lists a device's issued pins, newest first. Hashes are not
// serialized; plaintexts are long gone.
func (s *LinkService) PinsForCreator(ctx context.Context, creator device.Device) ([]LinkPin, error) {
	if creator.Anonymous() {
		return nil, secerrors.ErrProfileRequired
	}
	pins, err := s.pinRepository.FindPinsByCreator(ctx, creator.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}
	return pins, nil
}

// PurgeExpired removes expired unredeemed pins; returns how many were purged
func (s *LinkService) PurgeExpired(ctx context.Context) (int, error) {
	return s.pinRepository.PurgeExpired(ctx, s.now())
}

// redeemFailed audits the precise internal reason and returns the uniform
// external error.
func (s *LinkService) redeemFailed(ctx context.Context, redeemer device.Device, pinID uuid.UUID, reason string) error {
	metadata := map[string]interface{}{"reason": reason}
	if pinID != uuid.Nil {
		metadata["pin_id"] = pinID.String()
	}
	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity: audit.SeverityWarning,
		Kind:     audit.KindPinRedeemFailed,
		DeviceID: redeemer.DeviceID,
		Metadata: metadata,
	})
	slog.Info("Pin redemption failed", "deviceID", redeemer.DeviceID, "reason", reason)
	return secerrors.ErrInvalidOrExpiredPin
}
