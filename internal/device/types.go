package device

import (
	"fmt"
	"time"
)

// RelayCount is the number of relay slots every device exposes.
// Slot i is addressed on the wire as relay{i+1}.
const RelayCount = 4

// Device is a registered piece of home hardware owned by one user.
// This matches the devices table in migrations/20260101_000000_initial_schema.up.sql.
type Device struct {
	// ID is the storage identifier used in /devices/{id}.
	ID string `json:"id"`

	// DeviceID is the globally unique, immutable id the hardware reports on the bus.
	DeviceID string `json:"deviceId"`

	Name     string `json:"name"`
	Location string `json:"location"`
	Type     Type   `json:"type"`

	// Status and LastSeen are refreshed by inbound telemetry. Status is a
	// cache hint only; liveness is computed from LastSeen.
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`

	Configuration Configuration `json:"configuration"`

	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Configuration holds the hardware layout of a device.
type Configuration struct {
	Sensors []Sensor `json:"sensors"`
	Relays  Relays   `json:"relays"`
}

// Sensor is one attached sensor.
type Sensor struct {
	Type    SensorType `json:"type"`
	Pin     int        `json:"pin"`
	Enabled bool       `json:"enabled"`
}

// Relay is one relay slot and its last commanded state.
type Relay struct {
	Name  string `json:"name"`
	Pin   int    `json:"pin"`
	State bool   `json:"state"`
}

// Relays is the fixed set of relay slots.
type Relays [RelayCount]Relay

// DefaultRelays returns four unwired slots named relay1..relay4, all off.
func DefaultRelays() Relays {
	var r Relays
	for i := range r {
		r[i].Name = fmt.Sprintf("relay%d", i+1)
	}
	return r
}

// RelaysFromList converts a decoded relay list into the fixed-size form.
// An empty list yields DefaultRelays; any length other than RelayCount is
// rejected. Unnamed slots get their default name.
func RelaysFromList(list []Relay) (Relays, error) {
	if len(list) == 0 {
		return DefaultRelays(), nil
	}
	if len(list) != RelayCount {
		return Relays{}, fmt.Errorf("%w: got %d relays, want %d", ErrInvalidRelays, len(list), RelayCount)
	}

	var r Relays
	copy(r[:], list)
	for i := range r {
		if r[i].Name == "" {
			r[i].Name = fmt.Sprintf("relay%d", i+1)
		}
	}
	return r, nil
}

// State returns the on/off state of every slot.
func (r Relays) State() RelayState {
	var s RelayState
	for i := range r {
		s[i] = r[i].State
	}
	return s
}

// WithState returns a copy of r with each slot's state replaced by s.
func (r Relays) WithState(s RelayState) Relays {
	for i := range r {
		r[i].State = s[i]
	}
	return r
}

// RelayState is the on/off value of the four relays.
type RelayState [RelayCount]bool

// Relay1 reports slot 0.
func (s RelayState) Relay1() bool { return s[0] }

// Relay2 reports slot 1.
func (s RelayState) Relay2() bool { return s[1] }

// Relay3 reports slot 2.
func (s RelayState) Relay3() bool { return s[2] }

// Relay4 reports slot 3.
func (s RelayState) Relay4() bool { return s[3] }

// RelayReport is the relay state a device reported; nil slots were not
// included in the report.
type RelayReport [RelayCount]*bool

// Empty reports whether no slot was reported.
func (r RelayReport) Empty() bool {
	for _, v := range r {
		if v != nil {
			return false
		}
	}
	return true
}

// Apply returns s with every reported slot overwritten.
func (r RelayReport) Apply(s RelayState) RelayState {
	for i, v := range r {
		if v != nil {
			s[i] = *v
		}
	}
	return s
}

// Type classifies the hardware.
type Type string

const (
	TypeESP32  Type = "esp32"
	TypeSensor Type = "sensor"
	TypeRelay  Type = "relay"
)

// AllTypes returns every accepted device type.
func AllTypes() []Type {
	return []Type{TypeESP32, TypeSensor, TypeRelay}
}

// Status is the cached reachability of a device.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// SensorType names an attached sensor model.
type SensorType string

const (
	SensorDHT22      SensorType = "dht22"
	SensorPIR        SensorType = "pir"
	SensorLDR        SensorType = "ldr"
	SensorMQ2        SensorType = "mq2"
	SensorWaterLevel SensorType = "water_level"
)

// AllSensorTypes returns every accepted sensor type.
func AllSensorTypes() []SensorType {
	return []SensorType{SensorDHT22, SensorPIR, SensorLDR, SensorMQ2, SensorWaterLevel}
}
