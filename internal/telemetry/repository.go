package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultLimit is the page size for ListByDevice when none is given.
	DefaultLimit = 50

	// MaxLimit caps ListByDevice page sizes.
	MaxLimit = 1000
)

// Query filters a device's history. Zero Start or End leaves that side open.
type Query struct {
	Limit int
	Start time.Time
	End   time.Time
}

// Repository defines telemetry persistence.
type Repository interface {
	// Insert stores rec and sets rec.ID.
	Insert(ctx context.Context, rec *Record) error

	// Latest returns the newest record for each of deviceIDs that has any.
	Latest(ctx context.Context, deviceIDs []string) ([]Record, error)

	// ListByDevice returns a device's records newest first.
	ListByDevice(ctx context.Context, deviceID string, q Query) ([]Record, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const recordColumns = `id, device_id, temperature, humidity, motion, light_level,
	gas_level, water_level, relay1, relay2, relay3, relay4, timestamp`

// Insert stores rec.
func (r *SQLiteRepository) Insert(ctx context.Context, rec *Record) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO telemetry (
			device_id, temperature, humidity, motion, light_level,
			gas_level, water_level, relay1, relay2, relay3, relay4, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DeviceID, rec.Temperature, rec.Humidity, rec.Motion, rec.LightLevel,
		rec.GasLevel, rec.WaterLevel,
		rec.Relay1, rec.Relay2, rec.Relay3, rec.Relay4,
		rec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading telemetry id: %w", err)
	}
	rec.ID = id
	return nil
}

// Latest returns the newest record per device, ordered by device_id.
func (r *SQLiteRepository) Latest(ctx context.Context, deviceIDs []string) ([]Record, error) {
	if len(deviceIDs) == 0 {
		return []Record{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(deviceIDs)), ",")
	args := make([]any, len(deviceIDs))
	for i, id := range deviceIDs {
		args[i] = id
	}

	query := `
		SELECT ` + recordColumns + ` FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY device_id ORDER BY timestamp DESC, id DESC
			) AS rn
			FROM telemetry
			WHERE device_id IN (` + placeholders + `)
		)
		WHERE rn = 1
		ORDER BY device_id`

	return r.query(ctx, query, args...)
}

// ListByDevice returns a device's records newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + recordColumns + ` FROM telemetry WHERE device_id = ?`)
	args := []any{deviceID}

	if !q.Start.IsZero() {
		b.WriteString(` AND timestamp >= ?`)
		args = append(args, q.Start.UnixMilli())
	}
	if !q.End.IsZero() {
		b.WriteString(` AND timestamp <= ?`)
		args = append(args, q.End.UnixMilli())
	}
	b.WriteString(` ORDER BY timestamp DESC, id DESC LIMIT ?`)
	args = append(args, limit)

	return r.query(ctx, b.String(), args...)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var ts int64
		if err := rows.Scan(
			&rec.ID, &rec.DeviceID, &rec.Temperature, &rec.Humidity, &rec.Motion,
			&rec.LightLevel, &rec.GasLevel, &rec.WaterLevel,
			&rec.Relay1, &rec.Relay2, &rec.Relay3, &rec.Relay4, &ts,
		); err != nil {
			return nil, fmt.Errorf("scanning telemetry: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry: %w", err)
	}
	return records, nil
}
