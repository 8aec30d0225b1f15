package mqtt

import (
	"fmt"
)

// Subscribe registers handler for topic and waits for the broker's SUBACK.
//
// The subscription lives as long as the current connection. Paho does not
// restore it after a reconnect with a clean session, so callers subscribe
// from Hooks.OnConnect, which runs on every connection.
//
//	topic := mqtt.Topics{Prefix: "home/"}.DeviceCommand("dev-1", mqtt.CategoryIR)
//	err := client.Subscribe(topic, 0, func(topic string, payload []byte) error {
//	    return nil
//	})
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validateSubscription(topic, qos, handler); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: %s: no SUBACK within %v", ErrSubscribeFailed, topic, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	return nil
}

func validateSubscription(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	case handler == nil:
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	return nil
}
