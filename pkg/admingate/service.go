package admingate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hushapp/anonid/pkg/audit"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/secerrors"
)

// GateService answers privilege checks and manages grants. Actor identity is
// always the resolved device from the registry; the service refuses to act
// for revoked devices regardless of any otherwise-valid state.
type GateService struct {
	grantRepository AdminGrantRepository
	auditService    *audit.Service
	capacity        int
}

// NewGateService creates a new admin gate with the given capacity ceiling
func NewGateService(grantRepository AdminGrantRepository, auditService *audit.Service, capacity int) *GateService {
	return &GateService{
		grantRepository: grantRepository,
		auditService:    auditService,
		capacity:        capacity,
	}
}

// Capacity returns the configured grant ceiling
func (s *GateService) Capacity() int {
	return s.capacity
}

// IsAdmin is a pure lookup keyed by a profile ID that must come from the
// resolved identity, never from request input.
func (s *GateService) IsAdmin(ctx context.Context, profileID uuid.UUID) (bool, error) {
	_, err := s.grantRepository.GetGrant(ctx, profileID)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check admin grant: %w", err)
	}
	return true, nil
}

// Grant gives the target profile the admin role on behalf of an
// already-privileged actor. The check-then-insert is serialized in the
// repository, so concurrent grants never jointly exceed capacity.
func (s *GateService) Grant(ctx context.Context, actor device.Device, targetProfileID uuid.UUID) (AdminGrant, error) {
	if err := s.authorizeActor(ctx, actor, "grant", targetProfileID); err != nil {
		return AdminGrant{}, err
	}

	grant, err := s.grantRepository.InsertGrantCapped(ctx, AdminGrant{ProfileID: targetProfileID, Role: RoleAdmin}, s.capacity)
	if err != nil {
		switch {
		case errors.Is(err, ErrGrantExists):
			// Idempotent: the timestamp was refreshed
			return grant, secerrors.ErrAlreadyGranted
		case errors.Is(err, ErrCapacityExceeded):
			s.auditService.Append(ctx, audit.SecurityEvent{
				Severity:  audit.SeverityWarning,
				Kind:      audit.KindAdminDenied,
				DeviceID:  actor.DeviceID,
				ProfileID: actor.ProfileID,
				Metadata: map[string]interface{}{
					"reason":         "capacity_exceeded",
					"target_profile": targetProfileID.String(),
					"capacity":       s.capacity,
				},
			})
			return AdminGrant{}, secerrors.ErrAdminCapacityExceeded
		default:
			return AdminGrant{}, fmt.Errorf("failed to insert admin grant: %w", err)
		}
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityCritical,
		Kind:      audit.KindAdminGranted,
		DeviceID:  actor.DeviceID,
		ProfileID: actor.ProfileID,
		Metadata: map[string]interface{}{
			"target_profile": targetProfileID.String(),
		},
	})
	slog.Info("Admin role granted", "targetProfile", targetProfileID, "actorDevice", actor.DeviceID)
	return grant, nil
}

// Revoke removes the target's grant unconditionally, freeing one capacity slot
func (s *GateService) Revoke(ctx context.Context, actor device.Device, targetProfileID uuid.UUID) error {
	if err := s.authorizeActor(ctx, actor, "revoke", targetProfileID); err != nil {
		return err
	}

	if err := s.grantRepository.DeleteGrant(ctx, targetProfileID); err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return secerrors.Wrap(err, secerrors.ErrCodeNotFound, "no grant held by target profile")
		}
		return fmt.Errorf("failed to delete admin grant: %w", err)
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityCritical,
		Kind:      audit.KindAdminRevoked,
		DeviceID:  actor.DeviceID,
		ProfileID: actor.ProfileID,
		Metadata: map[string]interface{}{
			"target_profile": targetProfileID.String(),
		},
	})
	slog.Info("Admin role revoked", "targetProfile", targetProfileID, "actorDevice", actor.DeviceID)
	return nil
}

// Bootstrap promotes the first operator. It runs only while the grant table
// is empty and is audited on its own kind so the one-time global mutation
// stands out in review.
func (s *GateService) Bootstrap(ctx context.Context, profileID uuid.UUID) (AdminGrant, error) {
	grant, err := s.grantRepository.BootstrapGrant(ctx, AdminGrant{ProfileID: profileID, Role: RoleAdmin})
	if err != nil {
		if errors.Is(err, ErrBootstrapDone) {
			slog.Info("Admin grants already exist - skipping bootstrap")
			return AdminGrant{}, secerrors.Wrap(err, secerrors.ErrCodeForbidden, "admin bootstrap already completed")
		}
		return AdminGrant{}, fmt.Errorf("failed to bootstrap admin grant: %w", err)
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityCritical,
		Kind:      audit.KindAdminBootstrap,
		ProfileID: uuid.NullUUID{UUID: profileID, Valid: true},
		Metadata: map[string]interface{}{
			"target_profile": profileID.String(),
		},
	})
	slog.Info("Admin bootstrap completed", "profileID", profileID)
	return grant, nil
}

// FindGrants returns all grants, for the moderation dashboard
func (s *GateService) FindGrants(ctx context.Context) ([]AdminGrant, error) {
	return s.grantRepository.FindGrants(ctx)
}

// Authorize runs the standard privileged-actor checks for callers outside
// this package that gate their own admin actions.
func (s *GateService) Authorize(ctx context.Context, actor device.Device, action string) error {
	return s.authorizeActor(ctx, actor, action, uuid.Nil)
}

// authorizeActor enforces the common preconditions for privileged calls:
// a bound, unrevoked, admin-holding actor resolved via the registry.
func (s *GateService) authorizeActor(ctx context.Context, actor device.Device, action string, target uuid.UUID) error {
	if actor.IsRevoked {
		s.auditService.Append(ctx, audit.SecurityEvent{
			Severity:  audit.SeverityWarning,
			Kind:      audit.KindAdminDenied,
			DeviceID:  actor.DeviceID,
			ProfileID: actor.ProfileID,
			Metadata: map[string]interface{}{
				"reason":         "device_revoked",
				"action":         action,
				"target_profile": target.String(),
			},
		})
		return secerrors.ErrDeviceRevoked
	}
	if actor.Anonymous() || !actor.HasProfile() {
		return secerrors.ErrProfileRequired
	}
	if actor.IsSuspicious {
		// Soft signal: allowed through, but worth the trace
		slog.Warn("Privileged action from suspicious device", "deviceID", actor.DeviceID, "action", action)
	}

	isAdmin, err := s.IsAdmin(ctx, actor.ProfileID.UUID)
	if err != nil {
		return err
	}
	if !isAdmin {
		s.auditService.Append(ctx, audit.SecurityEvent{
			Severity:  audit.SeverityWarning,
			Kind:      audit.KindAdminDenied,
			DeviceID:  actor.DeviceID,
			ProfileID: actor.ProfileID,
			Metadata: map[string]interface{}{
				"reason":         "not_admin",
				"action":         action,
				"target_profile": target.String(),
			},
		})
		return secerrors.New(secerrors.ErrCodeForbidden, "actor does not hold the admin role")
	}
	return nil
}
