package device

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLength     = 100
	maxLocationLength = 100
	maxDeviceIDLength = 64
	maxSensors        = 16
	maxPin            = 255
)

// deviceIDRegex accepts the ids firmware uses: letters, digits, and . _ : -
var deviceIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

var (
	validTypes       = make(map[Type]struct{})
	validSensorTypes = make(map[SensorType]struct{})
)

func init() {
	for _, t := range AllTypes() {
		validTypes[t] = struct{}{}
	}
	for _, s := range AllSensorTypes() {
		validSensorTypes[s] = struct{}{}
	}
}

// ValidateDevice checks every user-supplied field of d.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if err := ValidateDeviceID(d.DeviceID); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if utf8.RuneCountInString(d.Location) > maxLocationLength {
		return fmt.Errorf("%w: location exceeds %d characters", ErrInvalidDevice, maxLocationLength)
	}
	if err := ValidateType(d.Type); err != nil {
		return err
	}
	if d.Status != "" && d.Status != StatusOnline && d.Status != StatusOffline {
		return fmt.Errorf("%w: status %q", ErrInvalidDevice, d.Status)
	}
	if err := ValidateSensors(d.Configuration.Sensors); err != nil {
		return err
	}
	for i, r := range d.Configuration.Relays {
		if r.Pin < 0 || r.Pin > maxPin {
			return fmt.Errorf("%w: relay%d pin %d out of range", ErrInvalidRelays, i+1, r.Pin)
		}
	}
	if strings.TrimSpace(d.Owner) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidDevice)
	}
	return nil
}

// ValidateDeviceID checks the hardware id format.
func ValidateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: required", ErrInvalidDeviceID)
	}
	if len(id) > maxDeviceIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidDeviceID, maxDeviceIDLength)
	}
	if !deviceIDRegex.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, id)
	}
	return nil
}

// ValidateName checks that a display name is present and bounded.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: required", ErrInvalidName)
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateType checks t is a known device type.
func ValidateType(t Type) error {
	if _, ok := validTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	return nil
}

// ValidateSensors checks sensor types and pins.
func ValidateSensors(sensors []Sensor) error {
	if len(sensors) > maxSensors {
		return fmt.Errorf("%w: more than %d sensors", ErrInvalidSensor, maxSensors)
	}
	for i, s := range sensors {
		if _, ok := validSensorTypes[s.Type]; !ok {
			return fmt.Errorf("%w: sensor %d type %q", ErrInvalidSensor, i, s.Type)
		}
		if s.Pin < 0 || s.Pin > maxPin {
			return fmt.Errorf("%w: sensor %d pin %d out of range", ErrInvalidSensor, i, s.Pin)
		}
	}
	return nil
}
