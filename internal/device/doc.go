// Package device provides the DeviceRegistry: the immutable list of infrared
// blasters the bridge serves.
//
// The registry is read once at startup from devices.json, a list of records:
//
//	[
//	  {"name": "Living Room", "id": "bf1234", "key": "0123456789abcdef", "ip": "192.168.1.40"},
//	  {"name": "Bedroom", "id": "bf5678", "key": "fedcba9876543210", "ip": "192.168.1.41", "version": 3.1}
//	]
//
// The version field is optional and may be written as a number or a string.
// When absent it resolves to DefaultVersion. Records sharing an id collapse to
// the last one, which keeps the position of the first.
//
// Unlike the command table, a missing or malformed registry is fatal: LoadRegistry
// returns errors wrapping config.ErrResourceNotFound or config.ErrConfigInvalid.
package device
