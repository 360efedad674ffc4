package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memRepo struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (m *memRepo) Insert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}

func (m *memRepo) Latest(context.Context, []string) ([]Record, error) { return nil, nil }

func (m *memRepo) ListByDevice(context.Context, string, Query) ([]Record, error) { return nil, nil }

type fakeMirror struct {
	deviceID string
	fields   map[string]any
	at       time.Time
}

func (f *fakeMirror) WriteTelemetry(deviceID string, fields map[string]any, at time.Time) {
	f.deviceID, f.fields, f.at = deviceID, fields, at
}

func TestPersister_Persist(t *testing.T) {
	repo := &memRepo{}
	mirror := &fakeMirror{}
	p := NewPersister(repo)
	p.SetMirror(mirror)

	stored, err := p.Persist(context.Background(), []byte(validPayload), time.Time{})
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	if len(repo.records) != 1 {
		t.Fatalf("stored %d records, want 1", len(repo.records))
	}
	if stored.Record.Timestamp.IsZero() || !stored.Record.Timestamp.Equal(stored.ReceivedAt) {
		t.Errorf("defaulted timestamp = %v, received = %v", stored.Record.Timestamp, stored.ReceivedAt)
	}
	if mirror.deviceID != "esp-1" || mirror.fields["temperature"] != 21.5 || mirror.fields["relay1"] != true {
		t.Errorf("mirror got %q %v", mirror.deviceID, mirror.fields)
	}
}

func TestPersister_UnknownDeviceStored(t *testing.T) {
	repo := &memRepo{}
	p := NewPersister(repo)

	payload := `{"device_id":"never-registered","temperature":1,"humidity":1,"motion":0,` +
		`"light_level":1,"gas_level":1,"water_level":1}`
	if _, err := p.Persist(context.Background(), []byte(payload), time.Time{}); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if len(repo.records) != 1 || repo.records[0].DeviceID != "never-registered" {
		t.Errorf("records = %+v", repo.records)
	}
}

func TestPersister_SuppliedTimestampKept(t *testing.T) {
	repo := &memRepo{}
	p := NewPersister(repo)

	payload := `{"device_id":"esp-1","temperature":1,"humidity":1,"motion":0,` +
		`"light_level":1,"gas_level":1,"water_level":1,"timestamp":"2025-06-01T00:00:00Z"}`
	stored, err := p.Persist(context.Background(), []byte(payload), time.Time{})
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !stored.Record.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", stored.Record.Timestamp, want)
	}
	if stored.ReceivedAt.Equal(want) {
		t.Error("ReceivedAt should be the receipt time, not the payload time")
	}
}

func TestPersister_ValidationError(t *testing.T) {
	repo := &memRepo{}
	p := NewPersister(repo)

	_, err := p.Persist(context.Background(), []byte(`{"device_id":"esp-1","humidity":1}`), time.Time{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Persist() error = %v, want ErrValidation", err)
	}
	if len(repo.records) != 0 {
		t.Error("invalid reading was stored")
	}
}

func TestPersister_StorageError(t *testing.T) {
	repo := &memRepo{err: errors.New("disk I/O error")}
	mirror := &fakeMirror{}
	p := NewPersister(repo)
	p.SetMirror(mirror)

	_, err := p.Persist(context.Background(), []byte(validPayload), time.Time{})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("Persist() error = %v, want ErrStorage", err)
	}
	if mirror.deviceID != "" {
		t.Error("mirror written for a reading that was not stored")
	}
}

func TestPersister_UsesReceiptTime(t *testing.T) {
	repo := &memRepo{}
	p := NewPersister(repo)
	received := time.Date(2026, 1, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))

	stored, err := p.Persist(context.Background(), []byte(validPayload), received)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	want := time.Date(2026, 1, 1, 11, 0, 0, 123000000, time.UTC)
	if !stored.ReceivedAt.Equal(want) || stored.ReceivedAt.Location() != time.UTC {
		t.Errorf("ReceivedAt = %v, want %v", stored.ReceivedAt, want)
	}
	if !repo.records[0].Timestamp.Equal(want) {
		t.Errorf("stored Timestamp = %v, want %v", repo.records[0].Timestamp, want)
	}
}
