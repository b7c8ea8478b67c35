package relay

import "errors"

// Domain-specific errors for the relay.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrWouldBlock reports a read that found no data available.
	// Connections may return it (or syscall.EAGAIN) from Read; the relay
	// retries silently and never treats it as a failure.
	ErrWouldBlock = errors.New("relay: read would block")

	// ErrIdleTimeout is returned when a client sends nothing for longer
	// than the configured idle timeout.
	ErrIdleTimeout = errors.New("relay: connection idle timeout")

	// ErrBrokerUnavailable is returned when the broker cannot be reached
	// for an accepted connection, either because reconnect failed or the
	// reconnect breaker is open.
	ErrBrokerUnavailable = errors.New("relay: broker unavailable")

	// ErrRateLimited is returned when a client IP exceeds its connection rate.
	ErrRateLimited = errors.New("relay: connection rate limited")

	// ErrNotListening is returned by Serve when Listen has not succeeded.
	ErrNotListening = errors.New("relay: server not listening")
)
