package audit

import (
	"context"
	"time"
)

// EventRepository defines the interface for security event storage.
// Implementations are append-only: there is deliberately no update or delete.
type EventRepository interface {
	// AppendEvent persists a single event
	AppendEvent(ctx context.Context, event SecurityEvent) error
	// FindEventsSince returns events created at or after the given time,
	// oldest first
	FindEventsSince(ctx context.Context, since time.Time) ([]SecurityEvent, error)
	// FindRecentEvents returns up to limit events, newest first
	FindRecentEvents(ctx context.Context, limit int) ([]SecurityEvent, error)
	// FindEventsByDevice returns events for a device, newest first
	FindEventsByDevice(ctx context.Context, deviceID string, limit int) ([]SecurityEvent, error)
}
