// Package influxdb records IR dispatch telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each handled command
// becomes one "ir_dispatch" point tagged with the device id and the outcome
// (sent, unknown_command, send_failed), which is enough to chart command
// volume and failure rate per blaster.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.RecordDispatch("bf1234", "power_on", "sent")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned
// directly. Telemetry is optional: a nil *Client accepts writes and drops them.
package influxdb
