package control

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/smarthome-core/internal/device"
)

// ControlIntent is a partial relay request. A nil slot means "leave as stored".
type ControlIntent [device.RelayCount]*bool

// Set returns a copy of the intent with slot i (0-based) set to on.
func (in ControlIntent) Set(i int, on bool) ControlIntent {
	in[i] = &on
	return in
}

// Empty reports whether no slot is set.
func (in ControlIntent) Empty() bool {
	for _, v := range in {
		if v != nil {
			return false
		}
	}
	return true
}

type intentJSON struct {
	Relay1 *bool `json:"relay1"`
	Relay2 *bool `json:"relay2"`
	Relay3 *bool `json:"relay3"`
	Relay4 *bool `json:"relay4"`
}

// UnmarshalJSON accepts {"relay1":true,...}. Unknown keys are ignored;
// a non-boolean relay value is an error.
func (in *ControlIntent) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("%w: body must be an object", ErrInvalidIntent)
	}
	var raw intentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}
	*in = ControlIntent{raw.Relay1, raw.Relay2, raw.Relay3, raw.Relay4}
	return nil
}

// MarshalJSON writes only the set slots.
func (in ControlIntent) MarshalJSON() ([]byte, error) {
	return json.Marshal(intentJSON{in[0], in[1], in[2], in[3]})
}

// ResolveEffectiveState merges intent over the device's stored relays.
func ResolveEffectiveState(d *device.Device, intent ControlIntent) device.RelayState {
	state := d.Configuration.Relays.State()
	for i, v := range intent {
		if v != nil {
			state[i] = *v
		}
	}
	return state
}

// Command is the message published on the control topic.
type Command struct {
	DeviceID string `json:"device_id"`
	Relay1   bool   `json:"relay1"`
	Relay2   bool   `json:"relay2"`
	Relay3   bool   `json:"relay3"`
	Relay4   bool   `json:"relay4"`
}

// NewCommand builds the command for a full relay state.
func NewCommand(deviceID string, s device.RelayState) Command {
	return Command{
		DeviceID: deviceID,
		Relay1:   s.Relay1(),
		Relay2:   s.Relay2(),
		Relay3:   s.Relay3(),
		Relay4:   s.Relay4(),
	}
}

// State returns the commanded relay state.
func (c Command) State() device.RelayState {
	return device.RelayState{c.Relay1, c.Relay2, c.Relay3, c.Relay4}
}
