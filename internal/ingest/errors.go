package ingest

import "errors"

var (
	// ErrQueueFull is returned by Deliver when the message was dropped.
	ErrQueueFull = errors.New("ingest: queue full, message dropped")

	// ErrStopped is returned by Deliver after Stop.
	ErrStopped = errors.New("ingest: router stopped")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("ingest: router already started")
)
