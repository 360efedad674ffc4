// Package ingest routes inbound bus messages to their handlers.
//
// Deliver is installed as the MQTT message handler. It only enqueues; a fixed
// pool of workers does the work, so the broker connection is never held up by
// storage or slow WebSocket clients. When the queue is full the message is
// dropped and counted.
//
// Each worker checks the payload is JSON, runs the handler for its topic
// (telemetry or alert) and then fans the raw payload out as a sensorData
// event, whether or not the handler succeeded. Non-JSON payloads and
// unknown topics are dropped without fan-out.
package ingest
