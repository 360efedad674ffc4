package telemetry

import "errors"

var (
	// ErrValidation is returned when a payload is not a usable reading.
	ErrValidation = errors.New("telemetry: invalid reading")

	// ErrStorage is returned when a valid reading could not be stored.
	ErrStorage = errors.New("telemetry: storage failed")
)
