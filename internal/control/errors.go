package control

import "errors"

var (
	// ErrNotFound is returned when the device does not exist or belongs to another owner.
	ErrNotFound = errors.New("control: device not found")

	// ErrPublishFailed is returned when the broker rejected or dropped the command.
	ErrPublishFailed = errors.New("control: publish failed")

	// ErrPublishTimeout is returned when the command was not acknowledged in time.
	ErrPublishTimeout = errors.New("control: publish timed out")

	// ErrStorageUnavailable is returned when the device store could not be read or written.
	ErrStorageUnavailable = errors.New("control: storage unavailable")

	// ErrInvalidIntent is returned when a control body cannot be decoded.
	ErrInvalidIntent = errors.New("control: invalid control intent")
)
