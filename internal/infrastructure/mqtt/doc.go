// Package mqtt provides broker connectivity for the bridge.
//
// Each device session owns exactly one Client whose MQTT client id is the
// device id. The package manages:
//   - Connection to the broker with optional client-side auto-reconnect
//   - Topic subscriptions with panic-safe handler wrapping
//   - Connection lifecycle hooks (on-connect, connection-lost)
//   - A Done channel that closes when the connection ends for good
//
// # Reconnection
//
// When auto-reconnect is enabled the paho client re-establishes the
// connection itself and fires the on-connect hook again, which is where the
// session re-subscribes. When it is disabled, a lost connection closes Done
// and the owning session terminates.
//
// # Usage
//
//	client, err := mqtt.Connect(mqtt.OptionsFromConfig(cfg, "dev-1"), mqtt.Hooks{
//	    OnConnect: func() { _ = client.Subscribe(topic, 0, handler) },
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	<-client.Done()
package mqtt
