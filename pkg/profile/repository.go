package profile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Profile is the user-facing identity
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Handle    string    `json:"handle"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository is the read boundary to the external profile store
type ProfileRepository interface {
	// GetProfileById retrieves a profile by its ID
	GetProfileById(ctx context.Context, id uuid.UUID) (Profile, error)
}
