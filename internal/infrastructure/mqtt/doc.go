// Package mqtt provides the relay's connection to its MQTT broker.
//
// This package manages:
//   - Connection to the broker, restored only by explicit Reconnect
//   - Explicit blocking reconnect for liveness checks
//   - Bounded message publishing with QoS 0, 1 or 2
//   - Retained online/offline status with Last Will and Testament
//   - Connection health reporting
//
// The relay only publishes. It never subscribes, so there is no
// subscription bookkeeping to restore after a reconnect.
//
// # Status Topic
//
// On every connect the client publishes a retained JSON document to
// "<topic_prefix>/_relay/status":
//
//	{"status":"online","client_id":"gray-logic-relay","timestamp":"..."}
//
// Close replaces it with a graceful "offline" document; the broker
// publishes the Last Will "offline" document if the relay vanishes.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if !client.IsConnected() {
//	    if err := client.Reconnect(); err != nil {
//	        return err
//	    }
//	}
//	err = client.Publish("relay/10.0.0.7", data, 0, false)
package mqtt
