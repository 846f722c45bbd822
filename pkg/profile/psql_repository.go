package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresProfileRepository reads the profile table owned by the app's
// onboarding service. Read-only from this side.
type PostgresProfileRepository struct {
	db DBTX
}

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// NewPostgresProfileRepository creates a new PostgreSQL profile repository
func NewPostgresProfileRepository(db DBTX) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

// GetProfileById retrieves a profile by its ID
func (r *PostgresProfileRepository) GetProfileById(ctx context.Context, id uuid.UUID) (Profile, error) {
	query := `SELECT id, handle, avatar_url, created_at FROM profile WHERE id = $1`

	var (
		p         Profile
		avatarURL sql.NullString
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Handle, &avatarURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	p.AvatarURL = avatarURL.String
	return p, nil
}
