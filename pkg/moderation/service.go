package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hushapp/anonid/pkg/admingate"
	"github.com/hushapp/anonid/pkg/audit"
	"github.com/hushapp/anonid/pkg/device"
	"github.com/hushapp/anonid/pkg/notify"
	"github.com/hushapp/anonid/pkg/secerrors"
	"github.com/hushapp/anonid/pkg/suspicion"
)

// Verdict is the result of classifying one piece of content
type Verdict struct {
	ContentID  string   `json:"content_id"`
	IsFlagged  bool     `json:"is_flagged"`
	Confidence float64  `json:"confidence"`
	IssueKinds []string `json:"issue_kinds,omitempty"`
}

// LimitResetter clears accumulated throttle state for a device token
type LimitResetter interface {
	Reset(deviceID string)
}

// ModerationService records verdicts and applies device sanctions
type ModerationService struct {
	deviceRepository device.DeviceRepository
	gateService      *admingate.GateService
	scorer           *suspicion.Scorer
	auditService     *audit.Service
	notifier         notify.Notifier
	limits           LimitResetter
}

// Option configures a ModerationService
type Option func(*ModerationService)

// WithLimitResetter makes reinstatement clear the device's rate limit
// buckets along with the revocation flag
func WithLimitResetter(limits LimitResetter) Option {
	return func(s *ModerationService) {
		s.limits = limits
	}
}

// NewModerationService creates a new moderation service
func NewModerationService(deviceRepository device.DeviceRepository, gateService *admingate.GateService, scorer *suspicion.Scorer, auditService *audit.Service, notifier notify.Notifier, opts ...Option) *ModerationService {
	s := &ModerationService{
		deviceRepository: deviceRepository,
		gateService:      gateService,
		scorer:           scorer,
		auditService:     auditService,
		notifier:         notifier,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordVerdict attributes a classification verdict to the originating
// device. Flagged verdicts land on the audit trail as content_flagged and
// count as a policy violation toward the device's suspicion score; clean
// verdicts are dropped.
func (s *ModerationService) RecordVerdict(ctx context.Context, origin device.Device, verdict Verdict) error {
	if !verdict.IsFlagged {
		return nil
	}
	if origin.Anonymous() {
		slog.Warn("Flagged verdict with no originating device", "contentID", verdict.ContentID)
		return nil
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityWarning,
		Kind:      audit.KindContentFlagged,
		DeviceID:  origin.DeviceID,
		ProfileID: origin.ProfileID,
		Metadata: map[string]interface{}{
			"content_id":  verdict.ContentID,
			"confidence":  verdict.Confidence,
			"issue_kinds": strings.Join(verdict.IssueKinds, ","),
		},
	})

	if err := s.scorer.RecordOutcome(ctx, origin, suspicion.OutcomePolicyViolation); err != nil {
		return fmt.Errorf("failed to score flagged verdict: %w", err)
	}
	return nil
}

// RevokeDevice is the hard stop. Only an admin may call it, the flag is
// sticky, and nothing in the system clears it on success paths.
func (s *ModerationService) RevokeDevice(ctx context.Context, actor device.Device, targetDeviceID string) (device.Device, error) {
	if err := s.gateService.Authorize(ctx, actor, "revoke_device"); err != nil {
		return device.Device{}, err
	}

	target, err := s.deviceRepository.SetRevoked(ctx, targetDeviceID, true)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return device.Device{}, secerrors.Wrap(err, secerrors.ErrCodeNotFound, "no such device")
		}
		return device.Device{}, fmt.Errorf("failed to revoke device: %w", err)
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityCritical,
		Kind:      audit.KindDeviceRevoked,
		DeviceID:  targetDeviceID,
		ProfileID: target.ProfileID,
		Metadata: map[string]interface{}{
			"actor_device": actor.DeviceID,
		},
	})
	slog.Info("Device revoked", "deviceID", targetDeviceID, "actorDevice", actor.DeviceID)

	go func() {
		err := s.notifier.Send(notify.Alert{
			Subject: "Device revoked",
			Body:    fmt.Sprintf("Device %s was revoked by an admin.", targetDeviceID),
			Data: map[string]string{
				"device_id":    targetDeviceID,
				"actor_device": actor.DeviceID,
			},
		})
		if err != nil {
			slog.Error("Failed to send revocation alert", "err", err, "deviceID", targetDeviceID)
		}
	}()

	return target, nil
}

// ReinstateDevice lifts a revocation. This is the only path that clears the
// flag.
func (s *ModerationService) ReinstateDevice(ctx context.Context, actor device.Device, targetDeviceID string) (device.Device, error) {
	if err := s.gateService.Authorize(ctx, actor, "reinstate_device"); err != nil {
		return device.Device{}, err
	}

	target, err := s.deviceRepository.SetRevoked(ctx, targetDeviceID, false)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return device.Device{}, secerrors.Wrap(err, secerrors.ErrCodeNotFound, "no such device")
		}
		return device.Device{}, fmt.Errorf("failed to reinstate device: %w", err)
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityCritical,
		Kind:      audit.KindDeviceReinstated,
		DeviceID:  targetDeviceID,
		ProfileID: target.ProfileID,
		Metadata: map[string]interface{}{
			"actor_device": actor.DeviceID,
		},
	})
	slog.Info("Device reinstated", "deviceID", targetDeviceID, "actorDevice", actor.DeviceID)

	if s.limits != nil {
		s.limits.Reset(targetDeviceID)
	}
	return target, nil
}

// FlaggedEvents returns the recent content_flagged trail for admin review
func (s *ModerationService) FlaggedEvents(ctx context.Context, actor device.Device, limit int) ([]audit.SecurityEvent, error) {
	if err := s.gateService.Authorize(ctx, actor, "review_flags"); err != nil {
		return nil, err
	}

	events, err := s.auditService.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load flagged events: %w", err)
	}

	var flagged []audit.SecurityEvent
	for _, e := range events {
		if e.Kind == audit.KindContentFlagged {
			flagged = append(flagged, e)
		}
	}
	return flagged, nil
}
