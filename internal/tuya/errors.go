package tuya

import "errors"

// Domain errors for the tuya package.
var (
	// ErrConnectionFailed is returned when the device cannot be reached.
	ErrConnectionFailed = errors.New("tuya: connection failed")

	// ErrNotConnected is returned when sending on a closed client.
	ErrNotConnected = errors.New("tuya: not connected")

	// ErrSendFailed is returned when a frame cannot be written.
	ErrSendFailed = errors.New("tuya: send failed")

	// ErrUnsupportedVersion is returned for protocol versions other than 3.1, 3.2 and 3.3.
	ErrUnsupportedVersion = errors.New("tuya: unsupported protocol version")

	// ErrInvalidKey is returned when the local key is not 16 bytes.
	ErrInvalidKey = errors.New("tuya: local key must be 16 bytes")

	// ErrUnsupportedCommand is returned when building a payload for a command other than CONTROL.
	ErrUnsupportedCommand = errors.New("tuya: unsupported command")

	// ErrInvalidFrame is returned when decoding a malformed frame.
	ErrInvalidFrame = errors.New("tuya: invalid frame")
)
