package admingate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RoleAdmin is the only role the gate currently issues
const RoleAdmin = "admin"

// AdminGrant marks a profile as privileged. Unique per profile.
type AdminGrant struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrGrantNotFound = errors.New("admin grant not found")

	// ErrGrantExists is returned when the profile already holds the role.
	// The repository refreshes the timestamp before returning it.
	ErrGrantExists = errors.New("admin grant already exists")

	// ErrCapacityExceeded is returned when an insert would push the table
	// past the configured capacity.
	ErrCapacityExceeded = errors.New("admin grant capacity exceeded")

	// ErrBootstrapDone is returned by BootstrapGrant once any grant exists
	ErrBootstrapDone = errors.New("admin table is not empty")
)

// AdminGrantRepository defines the interface for the privileged-role table.
// InsertGrantCapped and BootstrapGrant must serialize their check-then-insert
// so the capacity and emptiness invariants hold under contention.
type AdminGrantRepository interface {
	// InsertGrantCapped inserts the grant unless the table already holds
	// capacity rows. An existing grant for the profile gets its timestamp
	// refreshed and ErrGrantExists back.
	InsertGrantCapped(ctx context.Context, grant AdminGrant, capacity int) (AdminGrant, error)

	// BootstrapGrant inserts the grant only while the table is empty
	BootstrapGrant(ctx context.Context, grant AdminGrant) (AdminGrant, error)

	// GetGrant retrieves a grant by profile ID
	GetGrant(ctx context.Context, profileID uuid.UUID) (AdminGrant, error)

	// DeleteGrant removes a grant, freeing one capacity slot
	DeleteGrant(ctx context.Context, profileID uuid.UUID) error

	// CountGrants returns the number of grants currently held
	CountGrants(ctx context.Context) (int, error)

	// FindGrants returns all grants
	FindGrants(ctx context.Context) ([]AdminGrant, error)
}
