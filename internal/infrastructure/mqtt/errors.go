package mqtt

import "errors"

// Domain errors for the mqtt package. Check with errors.Is.
var (
	// ErrNotConnected is returned when the client has no live broker connection.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed is returned when the first connect to the broker fails.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrSubscribeFailed is returned when the broker does not acknowledge a subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic is returned for an empty topic filter.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrInvalidClientID is returned when Connect is called without a client identity.
	ErrInvalidClientID = errors.New("mqtt: empty client id")
)
