package device

import "errors"

// Domain errors for the device package.
//
// Each is wrapped together with config.ErrConfigInvalid by LoadRegistry, so
// callers can match either the general or the specific failure.
var (
	// ErrInvalidDescriptor is returned when a record lacks a required field.
	ErrInvalidDescriptor = errors.New("device: invalid descriptor")

	// ErrInvalidVersion is returned when the version field is neither a number nor a string.
	ErrInvalidVersion = errors.New("device: invalid version")
)
