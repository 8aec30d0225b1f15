// Package logging provides structured logging for the bridge.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service/version attributes. Each device session logs through a child
// logger carrying device_id and device_name.
//
// Configuration comes from the logging section of config.json:
//
//	"logging": {"level": "info", "format": "json", "output": "stdout"}
//
// Setting the DEBUG environment variable forces the debug level.
//
// Never log the device local key or the broker password.
package logging
