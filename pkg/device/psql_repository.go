package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDeviceRepository implements DeviceRepository using PostgreSQL
type PostgresDeviceRepository struct {
	db DBTX
}

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// NewPostgresDeviceRepository creates a new PostgreSQL device repository
func NewPostgresDeviceRepository(db DBTX) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

const deviceColumns = `
	device_id, profile_id, first_seen_at, last_seen_at, request_count,
	failed_auth_count, is_suspicious, is_revoked, user_agent, ip_address,
	failure_window_start`

// UpsertDevice performs a single-statement upsert. ON CONFLICT never touches
// profile_id, so the persisted binding always wins over whatever the caller
// resolved at registration time.
func (r *PostgresDeviceRepository) UpsertDevice(ctx context.Context, params UpsertDeviceParams) (Device, error) {
	seenAt := params.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	query := `
		INSERT INTO device (
			device_id, first_seen_at, last_seen_at, request_count, user_agent, ip_address
		) VALUES (
			$1, $2, $2, 1, $3, $4
		)
		ON CONFLICT (device_id) DO UPDATE SET
			last_seen_at = EXCLUDED.last_seen_at,
			request_count = device.request_count + 1,
			user_agent = EXCLUDED.user_agent,
			ip_address = EXCLUDED.ip_address
		RETURNING ` + deviceColumns

	row := r.db.QueryRow(ctx, query, params.DeviceID, seenAt, params.UserAgent, params.IPAddress)
	device, err := scanDevice(row)
	if err != nil {
		slog.Error("Failed to upsert device", "err", err, "deviceID", params.DeviceID)
		return Device{}, fmt.Errorf("failed to upsert device: %w", err)
	}
	return device, nil
}

// GetDevice retrieves a device by its token
func (r *PostgresDeviceRepository) GetDevice(ctx context.Context, deviceID string) (Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM device WHERE device_id = $1`

	device, err := scanDevice(r.db.QueryRow(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Device{}, ErrDeviceNotFound
		}
		return Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

// BindProfile sets profile_id only when currently NULL. The COALESCE keeps
// whichever binding was persisted first under concurrent binds.
func (r *PostgresDeviceRepository) BindProfile(ctx context.Context, deviceID string, profileID uuid.UUID) (Device, error) {
	query := `
		UPDATE device
		SET profile_id = COALESCE(profile_id, $2)
		WHERE device_id = $1
		RETURNING ` + deviceColumns

	device, err := scanDevice(r.db.QueryRow(ctx, query, deviceID, profileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Device{}, ErrDeviceNotFound
		}
		return Device{}, fmt.Errorf("failed to bind profile: %w", err)
	}

	if device.ProfileID.Valid && device.ProfileID.UUID != profileID {
		return device, ErrProfileConflict
	}
	return device, nil
}

// IncrementFailedAuth bumps failed_auth_count within the fixed window in one
// statement, resetting it when the window has lapsed
func (r *PostgresDeviceRepository) IncrementFailedAuth(ctx context.Context, deviceID string, now time.Time, window time.Duration) (int, error) {
	windowFloor := now.Add(-window)
	query := `
		UPDATE device
		SET failed_auth_count = CASE
				WHEN failure_window_start IS NULL OR failure_window_start < $2 THEN 1
				ELSE failed_auth_count + 1
			END,
			failure_window_start = CASE
				WHEN failure_window_start IS NULL OR failure_window_start < $2 THEN $3
				ELSE failure_window_start
			END
		WHERE device_id = $1
		RETURNING failed_auth_count`

	var count int
	err := r.db.QueryRow(ctx, query, deviceID, windowFloor, now).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrDeviceNotFound
		}
		return 0, fmt.Errorf("failed to increment failed auth count: %w", err)
	}
	return count, nil
}

// SetSuspicious flips the soft suspicion flag
func (r *PostgresDeviceRepository) SetSuspicious(ctx context.Context, deviceID string, suspicious bool) (Device, error) {
	return r.setFlag(ctx, deviceID, "is_suspicious", suspicious)
}

// SetRevoked flips the hard revocation flag
func (r *PostgresDeviceRepository) SetRevoked(ctx context.Context, deviceID string, revoked bool) (Device, error) {
	return r.setFlag(ctx, deviceID, "is_revoked", revoked)
}

func (r *PostgresDeviceRepository) setFlag(ctx context.Context, deviceID, column string, value bool) (Device, error) {
	// column comes from the two callers above, never from input
	query := `UPDATE device SET ` + column + ` = $2 WHERE device_id = $1 RETURNING ` + deviceColumns

	device, err := scanDevice(r.db.QueryRow(ctx, query, deviceID, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Device{}, ErrDeviceNotFound
		}
		return Device{}, fmt.Errorf("failed to set %s: %w", column, err)
	}
	return device, nil
}

// FindDevices returns all devices
func (r *PostgresDeviceRepository) FindDevices(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM device ORDER BY last_seen_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// FindDevicesByProfile returns all devices bound to a profile
func (r *PostgresDeviceRepository) FindDevicesByProfile(ctx context.Context, profileID uuid.UUID) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM device WHERE profile_id = $1 ORDER BY last_seen_at DESC`

	rows, err := r.db.Query(ctx, query, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to find devices by profile: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

func scanDevice(row pgx.Row) (Device, error) {
	var (
		d           Device
		userAgent   sql.NullString
		ipAddress   sql.NullString
		windowStart sql.NullTime
	)
	err := row.Scan(
		&d.DeviceID,
		&d.ProfileID,
		&d.FirstSeenAt,
		&d.LastSeenAt,
		&d.RequestCount,
		&d.FailedAuthCount,
		&d.IsSuspicious,
		&d.IsRevoked,
		&userAgent,
		&ipAddress,
		&windowStart,
	)
	if err != nil {
		return Device{}, err
	}
	d.UserAgent = userAgent.String
	d.IPAddress = ipAddress.String
	if windowStart.Valid {
		d.FailureWindowStart = windowStart.Time
	}
	return d, nil
}

func scanDevices(rows pgx.Rows) ([]Device, error) {
	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}
