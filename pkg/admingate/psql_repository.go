package admingate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// adminGrantLockKey is the advisory lock key serializing grant inserts.
// All writers of admin_grant must take it so check-then-insert is atomic.
const adminGrantLockKey = 0x61646d696e // "admin"

// DBPool is the connection surface the postgres repository needs. It must be
// able to open transactions for the serialized insert paths.
type DBPool interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresAdminGrantRepository implements AdminGrantRepository using PostgreSQL
type PostgresAdminGrantRepository struct {
	db DBPool
}

// NewPostgresAdminGrantRepository creates a new PostgreSQL admin grant repository
func NewPostgresAdminGrantRepository(db DBPool) *PostgresAdminGrantRepository {
	return &PostgresAdminGrantRepository{db: db}
}

// InsertGrantCapped inserts the grant under an advisory lock so two
// concurrent grants cannot both pass the count check and jointly exceed
// capacity.
func (r *PostgresAdminGrantRepository) InsertGrantCapped(ctx context.Context, grant AdminGrant, capacity int) (AdminGrant, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return AdminGrant{}, fmt.Errorf("failed to begin grant transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, adminGrantLockKey); err != nil {
		return AdminGrant{}, fmt.Errorf("failed to take grant lock: %w", err)
	}

	now := time.Now().UTC()

	// Existing grant: refresh the timestamp, report ErrGrantExists
	var existing AdminGrant
	err = tx.QueryRow(ctx, `
		UPDATE admin_grant SET updated_at = $2
		WHERE profile_id = $1
		RETURNING profile_id, role, created_at, updated_at`,
		grant.ProfileID, now,
	).Scan(&existing.ProfileID, &existing.Role, &existing.CreatedAt, &existing.UpdatedAt)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return AdminGrant{}, fmt.Errorf("failed to commit grant refresh: %w", err)
		}
		return existing, ErrGrantExists
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return AdminGrant{}, fmt.Errorf("failed to check existing grant: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM admin_grant`).Scan(&count); err != nil {
		return AdminGrant{}, fmt.Errorf("failed to count grants: %w", err)
	}
	if count >= capacity {
		slog.Warn("Admin grant refused, capacity reached", "count", count, "capacity", capacity)
		return AdminGrant{}, ErrCapacityExceeded
	}

	role := grant.Role
	if role == "" {
		role = RoleAdmin
	}
	var created AdminGrant
	err = tx.QueryRow(ctx, `
		INSERT INTO admin_grant (profile_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING profile_id, role, created_at, updated_at`,
		grant.ProfileID, role, now,
	).Scan(&created.ProfileID, &created.Role, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return AdminGrant{}, fmt.Errorf("failed to insert grant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AdminGrant{}, fmt.Errorf("failed to commit grant: %w", err)
	}
	return created, nil
}

// BootstrapGrant inserts the grant only while the table is empty
func (r *PostgresAdminGrantRepository) BootstrapGrant(ctx context.Context, grant AdminGrant) (AdminGrant, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return AdminGrant{}, fmt.Errorf("failed to begin bootstrap transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, adminGrantLockKey); err != nil {
		return AdminGrant{}, fmt.Errorf("failed to take grant lock: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM admin_grant`).Scan(&count); err != nil {
		return AdminGrant{}, fmt.Errorf("failed to count grants: %w", err)
	}
	if count > 0 {
		return AdminGrant{}, ErrBootstrapDone
	}

	role := grant.Role
	if role == "" {
		role = RoleAdmin
	}
	now := time.Now().UTC()
	var created AdminGrant
	err = tx.QueryRow(ctx, `
		INSERT INTO admin_grant (profile_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING profile_id, role, created_at, updated_at`,
		grant.ProfileID, role, now,
	).Scan(&created.ProfileID, &created.Role, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return AdminGrant{}, fmt.Errorf("failed to insert bootstrap grant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AdminGrant{}, fmt.Errorf("failed to commit bootstrap grant: %w", err)
	}
	return created, nil
}

// GetGrant retrieves a grant by profile ID
func (r *PostgresAdminGrantRepository) GetGrant(ctx context.Context, profileID uuid.UUID) (AdminGrant, error) {
	var grant AdminGrant
	err := r.db.QueryRow(ctx, `
		SELECT profile_id, role, created_at, updated_at
		FROM admin_grant WHERE profile_id = $1`,
		profileID,
	).Scan(&grant.ProfileID, &grant.Role, &grant.CreatedAt, &grant.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AdminGrant{}, ErrGrantNotFound
		}
		return AdminGrant{}, fmt.Errorf("failed to get grant: %w", err)
	}
	return grant, nil
}

// DeleteGrant removes a grant, freeing one capacity slot
func (r *PostgresAdminGrantRepository) DeleteGrant(ctx context.Context, profileID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM admin_grant WHERE profile_id = $1`, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// CountGrants returns the number of grants currently held
func (r *PostgresAdminGrantRepository) CountGrants(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM admin_grant`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count grants: %w", err)
	}
	return count, nil
}

// FindGrants returns all grants
func (r *PostgresAdminGrantRepository) FindGrants(ctx context.Context) ([]AdminGrant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT profile_id, role, created_at, updated_at
		FROM admin_grant ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to find grants: %w", err)
	}
	defer rows.Close()

	var grants []AdminGrant
	for rows.Next() {
		var g AdminGrant
		if err := rows.Scan(&g.ProfileID, &g.Role, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grants: %w", err)
	}
	return grants, nil
}
