package mqtt

import (
	"fmt"
)

// maxPayloadSize is the largest payload Publish accepts (1 MB). Device
// records are tiny; anything near this limit indicates a bug upstream.
const maxPayloadSize = 1024 * 1024

// Publish sends a message to the given topic at the configured QoS.
//
// The call blocks until the broker acknowledges the message or the
// publish timeout elapses.
func (c *Client) Publish(topic string, payload []byte) error {
	return c.publish(topic, payload, false)
}

// PublishRetained sends a retained message to the given topic. The broker
// delivers the latest retained message to every new subscriber, which is
// how integrations pick up current device state without a request cycle.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.publish(topic, payload, true)
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds %d byte limit", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, byte(c.cfg.QoS), retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: publish to %s timed out after %v", ErrPublishFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: publish to %s: %w", ErrPublishFailed, topic, err)
	}

	return nil
}
