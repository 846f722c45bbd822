package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemEventRepository implements EventRepository using an in-memory slice
type InMemEventRepository struct {
	events []SecurityEvent
	mu     sync.Mutex
}

// NewInMemEventRepository creates a new in-memory event repository
func NewInMemEventRepository() *InMemEventRepository {
	return &InMemEventRepository{}
}

// AppendEvent appends an event to the in-memory log
func (r *InMemEventRepository) AppendEvent(ctx context.Context, event SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, event)
	return nil
}

// FindEventsSince returns events created at or after since, oldest first
func (r *InMemEventRepository) FindEventsSince(ctx context.Context, since time.Time) ([]SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []SecurityEvent
	for _, e := range r.events {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FindRecentEvents returns up to limit events, newest first
func (r *InMemEventRepository) FindRecentEvents(ctx context.Context, limit int) ([]SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []SecurityEvent
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

// FindEventsByDevice returns events for a device, newest first
func (r *InMemEventRepository) FindEventsByDevice(ctx context.Context, deviceID string, limit int) ([]SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []SecurityEvent
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].DeviceID == deviceID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}
