package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// dispatchMeasurement is the measurement written for every handled command.
const dispatchMeasurement = "ir_dispatch"

// RecordDispatch queues one point for a handled command message.
//
// Device and outcome are tags. The command name comes from message payloads
// and is unbounded, so it is stored as a field.
//
//	client.RecordDispatch("bf1234", "power_on", "sent")
func (c *Client) RecordDispatch(deviceID, command, outcome string) {
	c.write(write.NewPoint(dispatchMeasurement,
		map[string]string{
			"device_id": deviceID,
			"outcome":   outcome,
		},
		map[string]any{
			"count":   1,
			"command": command,
		},
		time.Now()))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
	c.queued.Add(1)
}
