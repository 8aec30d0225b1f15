package influxdb

import "errors"

// Domain errors for the influxdb package.
var (
	// ErrDisabled is returned by Connect when telemetry is switched off.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrConnectionFailed is returned when the server cannot be pinged.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")
)
