// Package influxdb mirrors device telemetry into InfluxDB v2.
//
// SQLite remains the system of record; the mirror is optional and lossy on
// failure. Each reading becomes one point in the "telemetry" measurement
// tagged by device_id.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
//	defer client.Close()
package influxdb
