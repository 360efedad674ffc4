package telemetry

import (
	"errors"
	"testing"
	"time"
)

const validPayload = `{"device_id":"esp-1","temperature":21.5,"humidity":40,"motion":0,` +
	`"light_level":300,"gas_level":12,"water_level":55,"relay1":true,"relay3":1,"firmware":"1.2"}`

func TestDecode_Valid(t *testing.T) {
	rec, err := Decode([]byte(validPayload))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if rec.DeviceID != "esp-1" || rec.Temperature != 21.5 || rec.WaterLevel != 55 {
		t.Errorf("Decode() = %+v", rec)
	}
	if got := rec.Relays(); got != [4]bool{true, false, true, false} {
		t.Errorf("Relays() = %v", got)
	}
	if !rec.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero when absent", rec.Timestamp)
	}
}

func TestDecode_RelayReport(t *testing.T) {
	base := `{"device_id":"esp-1","temperature":1,"humidity":1,"motion":0,` +
		`"light_level":1,"gas_level":1,"water_level":1`

	tests := []struct {
		name   string
		relays string
		want   [4]*bool
	}{
		{"no relays", ``, [4]*bool{}},
		{"one relay", `,"relay2":false`, [4]*bool{nil, boolPtr(false), nil, nil}},
		{"null relay", `,"relay1":null,"relay4":1`, [4]*bool{nil, nil, nil, boolPtr(true)}},
		{"all relays", `,"relay1":true,"relay2":0,"relay3":false,"relay4":true`,
			[4]*bool{boolPtr(true), boolPtr(false), boolPtr(false), boolPtr(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Decode([]byte(base + tt.relays + "}"))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			got := rec.RelayReport()
			for i := range got {
				switch {
				case (got[i] == nil) != (tt.want[i] == nil):
					t.Errorf("relay%d reported = %v, want %v", i+1, got[i] != nil, tt.want[i] != nil)
				case got[i] != nil && *got[i] != *tt.want[i]:
					t.Errorf("relay%d = %v, want %v", i+1, *got[i], *tt.want[i])
				}
			}
		})
	}
}

func boolPtr(b bool) *bool { return &b }

func TestDecode_MotionBoolean(t *testing.T) {
	payload := `{"device_id":"esp-1","temperature":1,"humidity":1,"motion":true,` +
		`"light_level":1,"gas_level":1,"water_level":1}`

	rec, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec.Motion != 1 {
		t.Errorf("Motion = %v, want 1", rec.Motion)
	}
}

func TestDecode_Timestamp(t *testing.T) {
	base := `{"device_id":"esp-1","temperature":1,"humidity":1,"motion":0,` +
		`"light_level":1,"gas_level":1,"water_level":1,"timestamp":`

	tests := []struct {
		name string
		ts   string
		want time.Time
		ok   bool
	}{
		{"rfc3339", `"2026-03-01T10:00:00Z"`, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"unix millis", `1772359200000`, time.UnixMilli(1772359200000).UTC(), true},
		{"null", `null`, time.Time{}, true},
		{"garbage string", `"yesterday"`, time.Time{}, false},
		{"object", `{}`, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Decode([]byte(base + tt.ts + "}"))
			if !tt.ok {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("Decode() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !rec.Timestamp.Equal(tt.want) {
				t.Errorf("Timestamp = %v, want %v", rec.Timestamp, tt.want)
			}
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"device_id":`},
		{"array", `[1,2,3]`},
		{"missing device_id", `{"temperature":1,"humidity":1,"motion":0,"light_level":1,"gas_level":1,"water_level":1}`},
		{"blank device_id", `{"device_id":"  ","temperature":1,"humidity":1,"motion":0,"light_level":1,"gas_level":1,"water_level":1}`},
		{"numeric device_id", `{"device_id":7,"temperature":1,"humidity":1,"motion":0,"light_level":1,"gas_level":1,"water_level":1}`},
		{"missing temperature", `{"device_id":"esp-1","humidity":1,"motion":0,"light_level":1,"gas_level":1,"water_level":1}`},
		{"null humidity", `{"device_id":"esp-1","temperature":1,"humidity":null,"motion":0,"light_level":1,"gas_level":1,"water_level":1}`},
		{"string temperature", `{"device_id":"esp-1","temperature":"hot","humidity":1,"motion":0,"light_level":1,"gas_level":1,"water_level":1}`},
		{"numeric string", `{"device_id":"esp-1","temperature":"21.5","humidity":1,"motion":0,"light_level":1,"gas_level":1,"water_level":1}`},
		{"relay as 2", `{"device_id":"esp-1","temperature":1,"humidity":1,"motion":0,"light_level":1,"gas_level":1,"water_level":1,"relay2":2}`},
		{"relay as string", `{"device_id":"esp-1","temperature":1,"humidity":1,"motion":0,"light_level":1,"gas_level":1,"water_level":1,"relay2":"on"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.payload)); !errors.Is(err, ErrValidation) {
				t.Errorf("Decode() error = %v, want ErrValidation", err)
			}
		})
	}
}
