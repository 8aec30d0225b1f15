package config

import "errors"

// Domain errors for loading persisted resources.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrResourceNotFound is returned when a config, registry or table file does not exist.
	ErrResourceNotFound = errors.New("config: resource not found")

	// ErrConfigInvalid is returned when a structured record cannot be parsed or fails validation.
	ErrConfigInvalid = errors.New("config: invalid configuration")
)
