// Package relay forwards raw TCP byte streams to an MQTT broker.
//
// A Server accepts connections and hands each one to a Relay. The Relay
// reads from the connection and publishes every non-empty read, unchanged,
// as one message on "<prefix>/<client IP>". There is no framing: message
// boundaries are whatever a single read returned.
//
// # Broker Liveness
//
// Before a connection is relayed the server checks the shared Broker. If
// it is disconnected a blocking Reconnect is attempted; on failure the
// connection is closed unrelayed and the server moves on to the next
// accept. An optional circuit breaker (sony/gobreaker) stops hammering a
// dead broker after repeated failures.
//
// # Concurrency
//
// The default is serial: one connection at a time, the next one waiting
// in the listen backlog. ServerOptions.MaxConnections > 1 relays
// connections in parallel, bounded by a weighted semaphore.
//
// # Read Outcomes
//
//	(n > 0, _)           publish n bytes, then handle any error
//	(0, io.EOF)          peer closed, success
//	(0, nil)             nothing yet, read again silently
//	EAGAIN/ErrWouldBlock nothing yet, read again silently
//	deadline exceeded    ErrIdleTimeout when an idle timeout is set
//	anything else        failure
//
// # Usage
//
//	srv, err := relay.NewServer(relay.ServerOptions{
//	    Address: "0.0.0.0:9000",
//	    Relay:   relay.Config{TopicPrefix: "relay", QoS: 0},
//	    Broker:  broker,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := srv.Listen(); err != nil {
//	    return err
//	}
//	return srv.Serve(ctx)
package relay
