package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// Record is one stored reading.
type Record struct {
	ID       int64  `json:"id,omitempty"`
	DeviceID string `json:"device_id"`

	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Motion      float64 `json:"motion"`
	LightLevel  float64 `json:"light_level"`
	GasLevel    float64 `json:"gas_level"`
	WaterLevel  float64 `json:"water_level"`

	Relay1 bool `json:"relay1"`
	Relay2 bool `json:"relay2"`
	Relay3 bool `json:"relay3"`
	Relay4 bool `json:"relay4"`

	Timestamp time.Time `json:"timestamp"`

	// reported marks the relay flags present in the decoded payload.
	reported [device.RelayCount]bool
}

// Relays returns the reported relay flags.
func (r Record) Relays() device.RelayState {
	return device.RelayState{r.Relay1, r.Relay2, r.Relay3, r.Relay4}
}

// RelayReport returns only the relay flags the payload carried. Records
// read back from storage report nothing.
func (r Record) RelayReport() device.RelayReport {
	var rep device.RelayReport
	flags := r.Relays()
	for i := range rep {
		if r.reported[i] {
			v := flags[i]
			rep[i] = &v
		}
	}
	return rep
}

// fields returns the readings keyed by wire name, for the InfluxDB mirror.
func (r Record) fields() map[string]any {
	return map[string]any{
		"temperature": r.Temperature,
		"humidity":    r.Humidity,
		"motion":      r.Motion,
		"light_level": r.LightLevel,
		"gas_level":   r.GasLevel,
		"water_level": r.WaterLevel,
		"relay1":      r.Relay1,
		"relay2":      r.Relay2,
		"relay3":      r.Relay3,
		"relay4":      r.Relay4,
	}
}

// Decode parses a telemetry payload.
//
// The six readings are required and must be JSON numbers; booleans are
// accepted as 1/0 since PIR firmware reports motion that way. Relay flags
// accept booleans or 0/1; an absent flag is stored as false but left out
// of RelayReport. timestamp is optional: an RFC 3339 string or Unix
// milliseconds. Unknown fields are ignored.
// A zero Timestamp in the result means none was supplied.
func Decode(payload []byte) (Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	var rec Record

	if err := decodeDeviceID(raw["device_id"], &rec.DeviceID); err != nil {
		return Record{}, err
	}

	readings := []struct {
		name string
		dst  *float64
	}{
		{"temperature", &rec.Temperature},
		{"humidity", &rec.Humidity},
		{"motion", &rec.Motion},
		{"light_level", &rec.LightLevel},
		{"gas_level", &rec.GasLevel},
		{"water_level", &rec.WaterLevel},
	}
	for _, r := range readings {
		v, err := decodeReading(r.name, raw[r.name])
		if err != nil {
			return Record{}, err
		}
		*r.dst = v
	}

	relays := []struct {
		name string
		dst  *bool
	}{
		{"relay1", &rec.Relay1},
		{"relay2", &rec.Relay2},
		{"relay3", &rec.Relay3},
		{"relay4", &rec.Relay4},
	}
	for i, r := range relays {
		v, err := decodeFlag(r.name, raw[r.name])
		if err != nil {
			return Record{}, err
		}
		*r.dst = v
		rec.reported[i] = !isNull(raw[r.name])
	}

	ts, err := decodeTimestamp(raw["timestamp"])
	if err != nil {
		return Record{}, err
	}
	rec.Timestamp = ts

	return rec, nil
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func decodeDeviceID(v json.RawMessage, dst *string) error {
	if isNull(v) {
		return fmt.Errorf("%w: device_id is required", ErrValidation)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return fmt.Errorf("%w: device_id must be a string", ErrValidation)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%w: device_id is required", ErrValidation)
	}
	*dst = s
	return nil
}

func decodeReading(name string, v json.RawMessage) (float64, error) {
	if isNull(v) {
		return 0, fmt.Errorf("%w: %s is required", ErrValidation, name)
	}

	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, nil
	}

	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("%w: %s must be numeric", ErrValidation, name)
}

func decodeFlag(name string, v json.RawMessage) (bool, error) {
	if isNull(v) {
		return false, nil
	}

	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}

	var f float64
	if err := json.Unmarshal(v, &f); err == nil && (f == 0 || f == 1) {
		return f == 1, nil
	}

	return false, fmt.Errorf("%w: %s must be boolean", ErrValidation, name)
}

func decodeTimestamp(v json.RawMessage) (time.Time, error) {
	if isNull(v) {
		return time.Time{}, nil
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q is not RFC 3339", ErrValidation, s)
		}
		return t.UTC(), nil
	}

	var ms int64
	if err := json.Unmarshal(v, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: timestamp must be RFC 3339 or Unix milliseconds", ErrValidation)
}
