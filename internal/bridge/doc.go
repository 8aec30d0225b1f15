// Package bridge runs one MQTT-to-IR session per configured device.
//
// # Architecture
//
//	            ┌──────────────────────────────────────────────┐
//	            │                 Supervisor                   │
//	            │  one goroutine per device.Descriptor         │
//	            └──────┬───────────────────┬───────────────────┘
//	                   │                   │
//	          ┌────────▼───────┐   ┌───────▼────────┐
//	          │ Session bf1234 │   │ Session bf5678 │   ...
//	          │  mqtt.Client   │   │  mqtt.Client   │
//	          │  tuya.Client   │   │  tuya.Client   │
//	          └────────┬───────┘   └───────┬────────┘
//	                   │   shared, read-only│
//	                   └──────► command.Table ◄┘
//
// Each session owns its broker and device connections exclusively. The
// command table is the only value shared between sessions and is never
// written after load.
//
// # Session Lifecycle
//
//	Disconnected ─► Connecting ─► Subscribed ⇄ Delivering
//	                    │              │
//	                    └──────────────┴──► Terminated
//
// Connecting dials the device, then the broker with the device id as client
// identity. Every broker (re)connection subscribes to
// <topic-prefix><device-id>/ir/command at QoS 0. A session that reaches
// Terminated is not restarted.
//
// # Message Handling
//
// Messages for one session are handled one at a time in arrival order:
//
//  1. An empty payload is ignored.
//  2. The payload text is looked up in the command table. Unknown names are
//     logged and dropped.
//  3. A known name is sent to the device as CONTROL {"201": code}.
//
// Device errors are logged and never end the session.
package bridge
