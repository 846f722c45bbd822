package profile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemProfileRepository implements ProfileRepository using an in-memory map.
// CreateProfile stands in for the external onboarding flow in tests and the
// inmem demo.
type InMemProfileRepository struct {
	profiles map[uuid.UUID]Profile
	mu       sync.Mutex
}

// NewInMemProfileRepository creates a new in-memory profile repository
func NewInMemProfileRepository() *InMemProfileRepository {
	return &InMemProfileRepository{
		profiles: make(map[uuid.UUID]Profile),
	}
}

// GetProfileById retrieves a profile by its ID
func (r *InMemProfileRepository) GetProfileById(ctx context.Context, id uuid.UUID) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.profiles[id]
	if !exists {
		return Profile{}, ErrProfileNotFound
	}
	return p, nil
}

// CreateProfile stores a profile, generating an ID when absent
func (r *InMemProfileRepository) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.profiles[p.ID] = p
	return p, nil
}
