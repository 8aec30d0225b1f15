// Package tuya implements the sending half of the Tuya local LAN protocol
// used by WiFi infrared blasters.
//
// Only what the bridge needs is implemented: building CONTROL frames for
// protocol versions 3.1, 3.2 and 3.3, and writing them to the device over
// TCP port 6668. Responses are not read.
//
// # Frame Layout
//
// Every message is a big-endian frame:
//
//	┌──────────┬──────────┬──────────┬──────────┬─────────┬───────┬──────────┐
//	│ 000055AA │ sequence │ command  │ length   │ payload │ CRC32 │ 0000AA55 │
//	│ 4 bytes  │ 4 bytes  │ 4 bytes  │ 4 bytes  │ n bytes │ 4     │ 4 bytes  │
//	└──────────┴──────────┴──────────┴──────────┴─────────┴───────┴──────────┘
//
// length counts the payload, CRC and suffix. The CRC covers everything
// before it.
//
// # Payload Encryption
//
// The JSON body {"devId","uid","t","dps"} is encrypted with AES-128-ECB and
// PKCS#7 padding, keyed by the device's 16 byte local key.
//
//   - 3.1: the ciphertext is base64 encoded and prefixed with "3.1" and 16
//     hex characters of an MD5 signature.
//   - 3.2 and 3.3: the raw ciphertext is prefixed with the version and 12
//     zero bytes.
//
// # Connection Handling
//
// Dial verifies the device is reachable. A failed write drops the socket and
// the next Send dials again. With Persistent unset the socket is also closed
// after every frame, which suits devices that drop idle connections.
package tuya
