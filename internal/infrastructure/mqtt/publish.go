package mqtt

import (
	"context"
	"errors"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps outbound payloads (1MB).
const maxPayloadSize = 1 << 20

// Publish sends payload to topic, waiting up to defaultPublishTimeout for
// the broker acknowledgement.
//
// Example:
//
//	err := client.Publish("home/control", []byte(`{"device_id":"esp-1","relay1":true}`), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()
	return c.publish(ctx, topic, payload, qos, retained)
}

// PublishContext publishes a non-retained message at the configured QoS,
// waiting for the acknowledgement until ctx is done.
//
// A deadline yields ErrPublishTimeout; a broker error or cancellation yields
// ErrPublishFailed. Nothing is retried.
func (c *Client) PublishContext(ctx context.Context, topic string, payload []byte) error {
	return c.publish(ctx, topic, payload, byte(c.cfg.QoS), false)
}

func (c *Client) publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidateTopic(topic, false); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return waitToken(ctx, c.client.Publish(topic, qos, retained, payload))
}

// waitToken blocks until token completes or ctx ends.
func waitToken(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrPublishTimeout, ctx.Err())
		}
		return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	}
}
