package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// TelemetryMeasurement is the measurement name for mirrored device readings.
const TelemetryMeasurement = "telemetry"

// WriteTelemetry queues one device reading, tagged by device_id and stamped
// with the receipt time assigned by the telemetry store.
//
// Example:
//
//	client.WriteTelemetry("esp-1", map[string]any{"temperature": 21.5, "relay1": true}, at)
func (c *Client) WriteTelemetry(deviceID string, fields map[string]any, at time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		TelemetryMeasurement,
		map[string]string{"device_id": deviceID},
		fields,
		at,
	)
	c.writeAPI.WritePoint(point)
}
