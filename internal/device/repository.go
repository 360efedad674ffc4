package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Repository defines device persistence. Lookups by storage id are always
// scoped to an owner; a device owned by someone else is ErrDeviceNotFound.
type Repository interface {
	// GetByIDAndOwner retrieves a device by storage id for its owner.
	GetByIDAndOwner(ctx context.Context, id, owner string) (*Device, error)

	// GetByDeviceID retrieves a device by the hardware id it reports on the bus.
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)

	// ListByOwner returns the owner's devices, newest first.
	ListByOwner(ctx context.Context, owner string) ([]Device, error)

	// Create inserts a new device, assigning ID and timestamps.
	// Returns ErrDeviceExists if the deviceId is taken.
	Create(ctx context.Context, device *Device) error

	// Update replaces name, location, type and configuration of an owned
	// device. Relay on/off state is kept as stored; only UpdateRelays
	// changes it.
	Update(ctx context.Context, device *Device) error

	// Delete removes an owned device.
	Delete(ctx context.Context, id, owner string) error

	// UpdateRelays sets the state of each relay slot, leaving names and pins alone.
	UpdateRelays(ctx context.Context, id string, state RelayState) error

	// Touch marks the device with the given hardware id online and advances
	// its lastSeen to at. lastSeen never moves backwards.
	Touch(ctx context.Context, deviceID string, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevice = `
	SELECT id, device_id, name, location, type, status, last_seen,
		sensors, relays, owner, created_at, updated_at
	FROM devices`

// GetByIDAndOwner retrieves a device by storage id for its owner.
func (r *SQLiteRepository) GetByIDAndOwner(ctx context.Context, id, owner string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevice+` WHERE id = ? AND owner = ?`, id, owner)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetByDeviceID retrieves a device by hardware id.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevice+` WHERE device_id = ?`, deviceID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by device_id: %w", err)
	}
	return d, nil
}

// ListByOwner returns the owner's devices, newest first.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, owner string) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevice+` WHERE owner = ? ORDER BY created_at DESC, name`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	sensorsJSON, relaysJSON, err := marshalConfiguration(d.Configuration)
	if err != nil {
		return err
	}

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (
			id, device_id, name, location, type, status, last_seen,
			sensors, relays, owner, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DeviceID, d.Name, d.Location, string(d.Type), string(d.Status),
		nullableMillis(d.LastSeen),
		sensorsJSON, relaysJSON, d.Owner,
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of an owned device. DeviceID, status,
// lastSeen and the relay state flags are left as stored: the new relay
// names and pins are written with the old row's state carried over, so an
// edit loaded before a dispatch cannot undo it. d's relay states are
// refreshed to match.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	sensorsJSON, relaysJSON, err := marshalConfiguration(d.Configuration)
	if err != nil {
		return err
	}

	d.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			name = ?, location = ?, type = ?, sensors = ?,
			relays = json_set(?,
				'$[0].state', json(CASE WHEN json_extract(relays, '$[0].state') THEN 'true' ELSE 'false' END),
				'$[1].state', json(CASE WHEN json_extract(relays, '$[1].state') THEN 'true' ELSE 'false' END),
				'$[2].state', json(CASE WHEN json_extract(relays, '$[2].state') THEN 'true' ELSE 'false' END),
				'$[3].state', json(CASE WHEN json_extract(relays, '$[3].state') THEN 'true' ELSE 'false' END)),
			updated_at = ?
		WHERE id = ? AND owner = ?`,
		d.Name, d.Location, string(d.Type), sensorsJSON, relaysJSON,
		d.UpdatedAt.Format(time.RFC3339),
		d.ID, d.Owner,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	var raw string
	if err := r.db.QueryRowContext(ctx, "SELECT relays FROM devices WHERE id = ?", d.ID).Scan(&raw); err != nil {
		return fmt.Errorf("reading updated relays: %w", err)
	}
	var stored Relays
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return fmt.Errorf("decoding updated relays: %w", err)
	}
	d.Configuration.Relays = d.Configuration.Relays.WithState(stored.State())
	return nil
}

// Delete removes an owned device.
func (r *SQLiteRepository) Delete(ctx context.Context, id, owner string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ? AND owner = ?", id, owner)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(result)
}

// UpdateRelays rewrites the four state flags in place with json_set so a
// concurrent configuration edit of names or pins is not clobbered.
func (r *SQLiteRepository) UpdateRelays(ctx context.Context, id string, state RelayState) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			relays = json_set(relays,
				'$[0].state', json(?), '$[1].state', json(?),
				'$[2].state', json(?), '$[3].state', json(?)),
			updated_at = ?
		WHERE id = ?`,
		jsonBool(state[0]), jsonBool(state[1]), jsonBool(state[2]), jsonBool(state[3]),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device relays: %w", err)
	}
	return requireRow(result)
}

// Touch marks a device online and advances lastSeen.
func (r *SQLiteRepository) Touch(ctx context.Context, deviceID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET
			status = 'online',
			last_seen = MAX(COALESCE(last_seen, 0), ?)
		WHERE device_id = ?`,
		at.UnixMilli(), deviceID,
	)
	if err != nil {
		return fmt.Errorf("touching device: %w", err)
	}
	return requireRow(result)
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var deviceType, status, sensorsJSON, relaysJSON, createdAt, updatedAt string
	var lastSeen sql.NullInt64

	err := scanner.Scan(
		&d.ID, &d.DeviceID, &d.Name, &d.Location, &deviceType, &status, &lastSeen,
		&sensorsJSON, &relaysJSON, &d.Owner, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Type = Type(deviceType)
	d.Status = Status(status)
	if lastSeen.Valid {
		t := time.UnixMilli(lastSeen.Int64).UTC()
		d.LastSeen = &t
	}

	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(sensorsJSON), &d.Configuration.Sensors); err != nil {
		return nil, fmt.Errorf("unmarshalling sensors: %w", err)
	}
	if d.Configuration.Sensors == nil {
		d.Configuration.Sensors = []Sensor{}
	}

	var relays []Relay
	if err := json.Unmarshal([]byte(relaysJSON), &relays); err != nil {
		return nil, fmt.Errorf("unmarshalling relays: %w", err)
	}
	if d.Configuration.Relays, err = RelaysFromList(relays); err != nil {
		return nil, fmt.Errorf("device %s: %w", d.DeviceID, err)
	}

	return &d, nil
}

func marshalConfiguration(cfg Configuration) (sensorsJSON, relaysJSON string, err error) {
	sensors := cfg.Sensors
	if sensors == nil {
		sensors = []Sensor{}
	}
	s, err := json.Marshal(sensors)
	if err != nil {
		return "", "", fmt.Errorf("marshalling sensors: %w", err)
	}
	r, err := json.Marshal(cfg.Relays)
	if err != nil {
		return "", "", fmt.Errorf("marshalling relays: %w", err)
	}
	return string(s), string(r), nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func jsonBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// isUniqueConstraintError reports a SQLite UNIQUE or PRIMARY KEY violation.
func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
