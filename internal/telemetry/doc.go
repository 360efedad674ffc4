// Package telemetry stores the readings devices publish on the telemetry topic.
//
// A Record is write-once. Its device_id is not checked against the device
// registry: readings from unknown hardware are kept. When a payload carries
// no timestamp the receipt time is used, never earlier than the previous
// defaulted timestamp for the same device.
package telemetry
