package linkpin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresLinkPinRepository implements LinkPinRepository using PostgreSQL
type PostgresLinkPinRepository struct {
	db DBTX
}

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// NewPostgresLinkPinRepository creates a new PostgreSQL link pin repository
func NewPostgresLinkPinRepository(db DBTX) *PostgresLinkPinRepository {
	return &PostgresLinkPinRepository{db: db}
}

const linkPinColumns = `
	id, pin_hash, created_by_device_id, created_by_profile_id,
	created_at, expires_at, redeemed_at, is_active`

// CreatePin persists a new pin
func (r *PostgresLinkPinRepository) CreatePin(ctx context.Context, pin LinkPin) (LinkPin, error) {
	if pin.ID == uuid.Nil {
		pin.ID = uuid.New()
	}
	if pin.CreatedAt.IsZero() {
		pin.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO link_pin (
			id, pin_hash, created_by_device_id, created_by_profile_id,
			created_at, expires_at, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		) RETURNING ` + linkPinColumns

	row := r.db.QueryRow(ctx, query,
		pin.ID,
		pin.PinHash,
		pin.CreatedByDeviceID,
		pin.CreatedByProfileID,
		pin.CreatedAt,
		pin.ExpiresAt,
		pin.IsActive,
	)
	created, err := scanLinkPin(row)
	if err != nil {
		return LinkPin{}, fmt.Errorf("failed to create link pin: %w", err)
	}
	return created, nil
}

// FindCandidatePins returns active, unredeemed pins
func (r *PostgresLinkPinRepository) FindCandidatePins(ctx context.Context) ([]LinkPin, error) {
	query := `SELECT ` + linkPinColumns + `
		FROM link_pin
		WHERE is_active AND redeemed_at IS NULL`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate pins: %w", err)
	}
	defer rows.Close()

	return scanLinkPins(rows)
}

// ClaimPin atomically marks the pin redeemed. The conditional UPDATE is the
// linearization point: the row predicate admits only one winner.
func (r *PostgresLinkPinRepository) ClaimPin(ctx context.Context, pinID uuid.UUID, redeemedAt time.Time) (LinkPin, error) {
	query := `
		UPDATE link_pin
		SET redeemed_at = $2, is_active = false
		WHERE id = $1 AND redeemed_at IS NULL AND is_active
		RETURNING ` + linkPinColumns

	pin, err := scanLinkPin(r.db.QueryRow(ctx, query, pinID, redeemedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LinkPin{}, ErrPinAlreadyClaimed
		}
		return LinkPin{}, fmt.Errorf("failed to claim link pin: %w", err)
	}
	return pin, nil
}

// DeactivatePin revokes a pin, scoped to its creator device
func (r *PostgresLinkPinRepository) DeactivatePin(ctx context.Context, pinID uuid.UUID, createdByDeviceID string) error {
	query := `
		UPDATE link_pin
		SET is_active = false
		WHERE id = $1 AND created_by_device_id = $2`

	tag, err := r.db.Exec(ctx, query, pinID, createdByDeviceID)
	if err != nil {
		return fmt.Errorf("failed to deactivate link pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPinNotFound
	}
	return nil
}

// FindPinsByCreator returns all pins issued by a device, newest first
func (r *PostgresLinkPinRepository) FindPinsByCreator(ctx context.Context, deviceID string) ([]LinkPin, error) {
	query := `SELECT ` + linkPinColumns + `
		FROM link_pin
		WHERE created_by_device_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pins by creator: %w", err)
	}
	defer rows.Close()

	return scanLinkPins(rows)
}

// PurgeExpired deletes pins that expired before the cutoff and were never redeemed
func (r *PostgresLinkPinRepository) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	query := `DELETE FROM link_pin WHERE redeemed_at IS NULL AND expires_at < $1`

	tag, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired pins: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanLinkPin(row pgx.Row) (LinkPin, error) {
	var (
		p          LinkPin
		redeemedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.PinHash,
		&p.CreatedByDeviceID,
		&p.CreatedByProfileID,
		&p.CreatedAt,
		&p.ExpiresAt,
		&redeemedAt,
		&p.IsActive,
	)
	if err != nil {
		return LinkPin{}, err
	}
	if redeemedAt.Valid {
		p.RedeemedAt = redeemedAt.Time
	}
	return p, nil
}

func scanLinkPins(rows pgx.Rows) ([]LinkPin, error) {
	var pins []LinkPin
	for rows.Next() {
		pin, err := scanLinkPin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link pin: %w", err)
		}
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate link pins: %w", err)
	}
	return pins, nil
}
