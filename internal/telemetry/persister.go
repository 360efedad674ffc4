package telemetry

import (
	"context"
	"fmt"
	"time"
)

// Mirror receives a copy of every stored reading. *influxdb.Client satisfies it.
type Mirror interface {
	WriteTelemetry(deviceID string, fields map[string]any, at time.Time)
}

// Persister validates and stores inbound telemetry payloads.
//
// It never consults the device registry. A zero Persister is not usable;
// construct one with NewPersister.
type Persister struct {
	repo   Repository
	mirror Mirror
}

// Stored is the outcome of a successful Persist.
type Stored struct {
	Record Record

	// ReceivedAt is the receipt time at millisecond precision, which is
	// also Record.Timestamp unless the payload carried its own.
	ReceivedAt time.Time
}

// NewPersister creates a Persister writing to repo.
func NewPersister(repo Repository) *Persister {
	return &Persister{repo: repo}
}

// SetMirror installs an optional secondary sink. Call before ingestion starts.
func (p *Persister) SetMirror(m Mirror) {
	p.mirror = m
}

// Persist decodes payload and stores it. receivedAt is when the message
// arrived; zero means now. Errors wrap ErrValidation or ErrStorage.
func (p *Persister) Persist(ctx context.Context, payload []byte, receivedAt time.Time) (Stored, error) {
	rec, err := Decode(payload)
	if err != nil {
		return Stored{}, err
	}

	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	received := receivedAt.UTC().Truncate(time.Millisecond)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = received
	}

	if err := p.repo.Insert(ctx, &rec); err != nil {
		return Stored{}, fmt.Errorf("%w: device %s: %w", ErrStorage, rec.DeviceID, err)
	}

	if p.mirror != nil {
		p.mirror.WriteTelemetry(rec.DeviceID, rec.fields(), rec.Timestamp)
	}

	return Stored{Record: rec, ReceivedAt: received}, nil
}
