package suspicion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hushapp/anonid/pkg/audit"
	"github.com/hushapp/anonid/pkg/device"
)

// Outcome classifies how a request ended for scoring purposes
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeAuthFailure     Outcome = "auth_failure"
	OutcomePolicyViolation Outcome = "policy_violation"
)

const (
	DefaultThreshold = 5
	DefaultWindow    = 15 * time.Minute
)

// Scorer turns request outcomes into device suspicion state
type Scorer struct {
	deviceRepository device.DeviceRepository
	auditService     *audit.Service
	threshold        int
	window           time.Duration
	now              func() time.Time
}

// Option configures a Scorer
type Option func(*Scorer)

// WithThreshold sets the failure count that flips a device to suspicious
func WithThreshold(threshold int) Option {
	return func(s *Scorer) { s.threshold = threshold }
}

// WithWindow sets the fixed window failures are counted over
func WithWindow(window time.Duration) Option {
	return func(s *Scorer) { s.window = window }
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a new suspicion scorer
func NewScorer(deviceRepository device.DeviceRepository, auditService *audit.Service, opts ...Option) *Scorer {
	s := &Scorer{
		deviceRepository: deviceRepository,
		auditService:     auditService,
		threshold:        DefaultThreshold,
		window:           DefaultWindow,
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordOutcome feeds one request outcome into the score. Failures bump the
// windowed counter; the moment the count reaches the threshold the device is
// marked suspicious and a suspicious_device event is appended - once per
// crossing, not once per subsequent failure. Successes change nothing:
// neither suspicion nor revocation is cleared automatically.
func (s *Scorer) RecordOutcome(ctx context.Context, d device.Device, outcome Outcome) error {
	if d.Anonymous() || outcome == OutcomeSuccess {
		return nil
	}

	count, err := s.deviceRepository.IncrementFailedAuth(ctx, d.DeviceID, s.now(), s.window)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	if count != s.threshold {
		return nil
	}

	if _, err := s.deviceRepository.SetSuspicious(ctx, d.DeviceID, true); err != nil {
		return fmt.Errorf("failed to mark device suspicious: %w", err)
	}

	s.auditService.Append(ctx, audit.SecurityEvent{
		Severity:  audit.SeverityWarning,
		Kind:      audit.KindSuspiciousDevice,
		DeviceID:  d.DeviceID,
		ProfileID: d.ProfileID,
		Metadata: map[string]interface{}{
			"outcome":      string(outcome),
			"failed_count": count,
			"threshold":    s.threshold,
			"window":       s.window.String(),
		},
	})
	slog.Warn("Device marked suspicious", "deviceID", d.DeviceID, "failedCount", count)
	return nil
}

// Threshold returns the configured failure threshold
func (s *Scorer) Threshold() int {
	return s.threshold
}
