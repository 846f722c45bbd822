package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresEventRepository implements EventRepository using PostgreSQL
type PostgresEventRepository struct {
	db DBTX
}

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// NewPostgresEventRepository creates a new PostgreSQL event repository
func NewPostgresEventRepository(db DBTX) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// AppendEvent persists a single event. The table has no UPDATE or DELETE
// path; revocation and review never rewrite history.
func (r *PostgresEventRepository) AppendEvent(ctx context.Context, event SecurityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
	}

	query := `
		INSERT INTO security_event (
			id, severity, kind, device_id, profile_id, created_at, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		string(event.Severity),
		string(event.Kind),
		event.DeviceID,
		event.ProfileID,
		event.CreatedAt,
		metadata,
	)
	if err != nil {
		slog.Error("Failed to append security event", "err", err, "kind", event.Kind)
		return fmt.Errorf("failed to append security event: %w", err)
	}
	return nil
}

// FindEventsSince returns events created at or after since, oldest first
func (r *PostgresEventRepository) FindEventsSince(ctx context.Context, since time.Time) ([]SecurityEvent, error) {
	query := `
		SELECT id, severity, kind, device_id, profile_id, created_at, metadata
		FROM security_event
		WHERE created_at >= $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FindRecentEvents returns up to limit events, newest first
func (r *PostgresEventRepository) FindRecentEvents(ctx context.Context, limit int) ([]SecurityEvent, error) {
	query := `
		SELECT id, severity, kind, device_id, profile_id, created_at, metadata
		FROM security_event
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent security events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// FindEventsByDevice returns events for a device, newest first
func (r *PostgresEventRepository) FindEventsByDevice(ctx context.Context, deviceID string, limit int) ([]SecurityEvent, error) {
	query := `
		SELECT id, severity, kind, device_id, profile_id, created_at, metadata
		FROM security_event
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events by device: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]SecurityEvent, error) {
	var events []SecurityEvent
	for rows.Next() {
		var (
			event    SecurityEvent
			severity string
			kind     string
			metadata []byte
		)
		err := rows.Scan(
			&event.ID,
			&severity,
			&kind,
			&event.DeviceID,
			&event.ProfileID,
			&event.CreatedAt,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		event.Severity = Severity(severity)
		event.Kind = Kind(kind)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate security events: %w", err)
	}
	return events, nil
}
