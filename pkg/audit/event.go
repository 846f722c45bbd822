package audit

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies how urgently an event needs operator attention
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Kind identifies what happened. Kinds are stable strings - the dashboard
// aggregates on them.
type Kind string

const (
	KindDeviceLinked     Kind = "device_linked"
	KindPinIssued        Kind = "pin_issued"
	KindPinRevoked       Kind = "pin_revoked"
	KindPinRedeemFailed  Kind = "pin_redeem_failed"
	KindSuspiciousDevice Kind = "suspicious_device"
	KindDeviceRevoked    Kind = "device_revoked"
	KindDeviceReinstated Kind = "device_reinstated"
	KindAdminGranted     Kind = "admin_granted"
	KindAdminRevoked     Kind = "admin_revoked"
	KindAdminBootstrap   Kind = "admin_bootstrap"
	KindAdminDenied      Kind = "admin_denied"
	KindContentFlagged   Kind = "content_flagged"
)

// SecurityEvent is a single append-only log entry. Events are never mutated
// or deleted by normal operation.
type SecurityEvent struct {
	ID        uuid.UUID              `json:"id"`
	Severity  Severity               `json:"severity"`
	Kind      Kind                   `json:"kind"`
	DeviceID  string                 `json:"device_id"`
	ProfileID uuid.NullUUID          `json:"profile_id,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// WithMetadata returns a copy of the event with the given metadata entry set
func (e SecurityEvent) WithMetadata(key string, value interface{}) SecurityEvent {
	meta := make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[key] = value
	e.Metadata = meta
	return e
}

// Summary aggregates event counts over a window for the dashboard
type Summary struct {
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	Total       int              `json:"total"`
	BySeverity  map[Severity]int `json:"by_severity"`
	ByKind      map[Kind]int     `json:"by_kind"`
}
