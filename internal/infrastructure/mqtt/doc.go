// Package mqtt connects the smart home core to the device bus.
//
// Devices publish readings on home/sensors and alerts on home/alert; the core
// publishes relay commands on home/control. One Client is created in main and
// handed to the components that need it.
//
// # Reconnects
//
// paho reconnects with backoff. On every reconnect the client re-subscribes
// each tracked topic and waits for the SUBACKs before Ready reports true. An
// LWT on home/server/status marks the core offline if it dies uncleanly.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("home/sensors", 1, func(topic string, payload []byte) error {
//	    return nil
//	})
//
//	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	err = client.PublishContext(ctx, "home/control", payload)
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) outside a trusted LAN
//   - The password comes from SMARTHOME_MQTT_PASSWORD and is never logged
package mqtt
