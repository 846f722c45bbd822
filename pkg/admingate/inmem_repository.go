package admingate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemAdminGrantRepository implements AdminGrantRepository using an
// in-memory map. The single mutex serializes check-then-insert, which is
// exactly the locking discipline the capacity invariant needs.
type InMemAdminGrantRepository struct {
	grants map[uuid.UUID]AdminGrant
	mu     sync.Mutex
}

// NewInMemAdminGrantRepository creates a new in-memory admin grant repository
func NewInMemAdminGrantRepository() *InMemAdminGrantRepository {
	return &InMemAdminGrantRepository{
		grants: make(map[uuid.UUID]AdminGrant),
	}
}

// InsertGrantCapped inserts the grant unless capacity is reached
func (r *InMemAdminGrantRepository) InsertGrantCapped(ctx context.Context, grant AdminGrant, capacity int) (AdminGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.grants[grant.ProfileID]; exists {
		existing.UpdatedAt = time.Now().UTC()
		r.grants[grant.ProfileID] = existing
		return existing, ErrGrantExists
	}

	if len(r.grants) >= capacity {
		return AdminGrant{}, ErrCapacityExceeded
	}

	now := time.Now().UTC()
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = now
	}
	grant.UpdatedAt = now
	if grant.Role == "" {
		grant.Role = RoleAdmin
	}
	r.grants[grant.ProfileID] = grant
	return grant, nil
}

// BootstrapGrant inserts the grant only while the table is empty
func (r *InMemAdminGrantRepository) BootstrapGrant(ctx context.Context, grant AdminGrant) (AdminGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.grants) > 0 {
		return AdminGrant{}, ErrBootstrapDone
	}

	now := time.Now().UTC()
	grant.CreatedAt = now
	grant.UpdatedAt = now
	if grant.Role == "" {
		grant.Role = RoleAdmin
	}
	r.grants[grant.ProfileID] = grant
	return grant, nil
}

// GetGrant retrieves a grant by profile ID
func (r *InMemAdminGrantRepository) GetGrant(ctx context.Context, profileID uuid.UUID) (AdminGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	grant, exists := r.grants[profileID]
	if !exists {
		return AdminGrant{}, ErrGrantNotFound
	}
	return grant, nil
}

// DeleteGrant removes a grant, freeing one capacity slot
func (r *InMemAdminGrantRepository) DeleteGrant(ctx context.Context, profileID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.grants[profileID]; !exists {
		return ErrGrantNotFound
	}
	delete(r.grants, profileID)
	return nil
}

// CountGrants returns the number of grants currently held
func (r *InMemAdminGrantRepository) CountGrants(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.grants), nil
}

// FindGrants returns all grants
func (r *InMemAdminGrantRepository) FindGrants(ctx context.Context) ([]AdminGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	grants := make([]AdminGrant, 0, len(r.grants))
	for _, g := range r.grants {
		grants = append(grants, g)
	}
	return grants, nil
}
