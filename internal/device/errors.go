package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no device matches. A device owned by
	// someone else is reported the same way.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose deviceId is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidDeviceID is returned for an empty or malformed hardware id.
	ErrInvalidDeviceID = errors.New("device: invalid deviceId")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidType is returned when a device type is not recognised.
	ErrInvalidType = errors.New("device: invalid type")

	// ErrInvalidSensor is returned for an unknown sensor type or bad pin.
	ErrInvalidSensor = errors.New("device: invalid sensor")

	// ErrInvalidRelays is returned when the relay list does not have exactly four slots.
	ErrInvalidRelays = errors.New("device: invalid relays")
)
