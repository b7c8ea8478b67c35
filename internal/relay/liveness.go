package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// defaultBreakerReset applies when a breaker is enabled without a reset period.
const defaultBreakerReset = 30 * time.Second

// liveness makes sure the broker is connected before a connection is relayed.
type liveness struct {
	broker  Broker
	logger  Logger
	breaker *gobreaker.CircuitBreaker // nil when disabled
}

// newLiveness builds the broker check. threshold > 0 enables a circuit
// breaker that stops reconnect attempts for reset after threshold
// consecutive failures.
func newLiveness(broker Broker, logger Logger, threshold int, reset time.Duration) *liveness {
	l := &liveness{broker: broker, logger: logger}
	if threshold <= 0 {
		return l
	}
	if reset <= 0 {
		reset = defaultBreakerReset
	}

	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker-reconnect",
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("broker reconnect breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return l
}

// ensure returns nil when the broker is connected, reconnecting first if
// needed. Every failure wraps ErrBrokerUnavailable.
func (l *liveness) ensure() error {
	if l.broker.IsConnected() {
		return nil
	}

	if l.breaker == nil {
		if err := l.broker.Reconnect(); err != nil {
			return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
		}
		return nil
	}

	_, err := l.breaker.Execute(func() (interface{}, error) {
		// Another relay may have reconnected while we waited.
		if l.broker.IsConnected() {
			return nil, nil
		}
		return nil, l.broker.Reconnect()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: reconnect suspended: %w", ErrBrokerUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}
}

// breakerState returns the breaker state name, or "disabled".
func (l *liveness) breakerState() string {
	if l.breaker == nil {
		return "disabled"
	}
	return l.breaker.State().String()
}
