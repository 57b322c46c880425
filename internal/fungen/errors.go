package fungen

import "errors"

// Sentinel errors for driver operations. Check with errors.Is.
var (
	// ErrNoLink indicates the device has no registered connection,
	// usually because it was created outside New or already released.
	ErrNoLink = errors.New("fungen: no connection registered for device")

	// ErrProtocol indicates the instrument answered with "ERROR" or an
	// unparseable response.
	ErrProtocol = errors.New("fungen: protocol error")
)
