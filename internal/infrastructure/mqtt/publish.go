package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// Relay reads are bounded by the listener buffer, far below this.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic and waits for the
// broker to complete the QoS handshake, bounded by the publish timeout.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "relay/10.0.0.7")
//   - payload: The raw message payload (max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
//
// Example:
//
//	err := client.Publish("relay/10.0.0.7", []byte("hello"), 0, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if !validPublishTopic(topic) {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, c.publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
