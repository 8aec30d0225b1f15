package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrConnectionFailure is returned by Session.Run when the device or the
	// broker cannot be reached at startup.
	ErrConnectionFailure = errors.New("bridge: connection failure")

	// ErrConnectionLost is returned by Session.Run when the broker connection
	// ends for good.
	ErrConnectionLost = errors.New("bridge: broker connection lost")

	// ErrNoDevice is returned when a command is delivered before the device
	// connection exists.
	ErrNoDevice = errors.New("bridge: device not connected")
)
