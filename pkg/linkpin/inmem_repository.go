package linkpin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemLinkPinRepository implements LinkPinRepository using an in-memory map
type InMemLinkPinRepository struct {
	pins map[uuid.UUID]LinkPin
	mu   sync.Mutex
}

// NewInMemLinkPinRepository creates a new in-memory link pin repository
func NewInMemLinkPinRepository() *InMemLinkPinRepository {
	return &InMemLinkPinRepository{
		pins: make(map[uuid.UUID]LinkPin),
	}
}

// CreatePin persists a new pin
func (r *InMemLinkPinRepository) CreatePin(ctx context.Context, pin LinkPin) (LinkPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pin.ID == uuid.Nil {
		pin.ID = uuid.New()
	}
	if pin.CreatedAt.IsZero() {
		pin.CreatedAt = time.Now().UTC()
	}
	r.pins[pin.ID] = pin
	return pin, nil
}

// FindCandidatePins returns active, unredeemed pins
func (r *InMemLinkPinRepository) FindCandidatePins(ctx context.Context) ([]LinkPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []LinkPin
	for _, p := range r.pins {
		if p.IsActive && p.RedeemedAt.IsZero() {
			out = append(out, p)
		}
	}
	return out, nil
}

// ClaimPin atomically marks the pin redeemed; the mutex makes the
// check-and-set a single step, so one winner only
func (r *InMemLinkPinRepository) ClaimPin(ctx context.Context, pinID uuid.UUID, redeemedAt time.Time) (LinkPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.pins[pinID]
	if !exists {
		return LinkPin{}, ErrPinNotFound
	}
	if !p.RedeemedAt.IsZero() || !p.IsActive {
		return LinkPin{}, ErrPinAlreadyClaimed
	}

	p.RedeemedAt = redeemedAt
	p.IsActive = false
	r.pins[pinID] = p
	return p, nil
}

// DeactivatePin revokes a pin, scoped to its creator device
func (r *InMemLinkPinRepository) DeactivatePin(ctx context.Context, pinID uuid.UUID, createdByDeviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.pins[pinID]
	if !exists || p.CreatedByDeviceID != createdByDeviceID {
		return ErrPinNotFound
	}

	p.IsActive = false
	r.pins[pinID] = p
	return nil
}

// FindPinsByCreator returns all pins issued by a device, newest first
func (r *InMemLinkPinRepository) FindPinsByCreator(ctx context.Context, deviceID string) ([]LinkPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []LinkPin
	for _, p := range r.pins {
		if p.CreatedByDeviceID == deviceID {
			out = append(out, p)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// PurgeExpired deletes pins that expired before the cutoff and were never redeemed
func (r *InMemLinkPinRepository) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for id, p := range r.pins {
		if p.RedeemedAt.IsZero() && p.ExpiresAt.Before(before) {
			delete(r.pins, id)
			purged++
		}
	}
	return purged, nil
}
