package relay

import (
	"errors"
	"testing"
	"time"
)

func TestLiveness_Connected(t *testing.T) {
	broker := NewMockBroker()
	l := newLiveness(broker, &MockLogger{}, 0, 0)

	if err := l.ensure(); err != nil {
		t.Fatalf("ensure() error = %v", err)
	}
	if broker.Reconnects() != 0 {
		t.Errorf("Reconnect called %d times, want 0", broker.Reconnects())
	}
	if got := l.breakerState(); got != "disabled" {
		t.Errorf("breakerState() = %q, want disabled", got)
	}
}

func TestLiveness_ReconnectFailureWrapped(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	broker := NewMockBroker()
	broker.SetConnected(false)
	broker.SetReconnectErr(cause)
	l := newLiveness(broker, &MockLogger{}, 0, 0)

	err := l.ensure()
	if !errors.Is(err, ErrBrokerUnavailable) {
		t.Errorf("ensure() error = %v, want ErrBrokerUnavailable", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("ensure() error = %v, want it to wrap the cause", err)
	}
}

func TestLiveness_NoBreakerRetriesEveryTime(t *testing.T) {
	broker := NewMockBroker()
	broker.SetConnected(false)
	broker.SetReconnectErr(errors.New("down"))
	l := newLiveness(broker, &MockLogger{}, 0, 0)

	for i := 0; i < 5; i++ {
		_ = l.ensure()
	}
	if got := broker.Reconnects(); got != 5 {
		t.Errorf("Reconnects = %d, want 5", got)
	}
}

func TestLiveness_BreakerOpens(t *testing.T) {
	broker := NewMockBroker()
	broker.SetConnected(false)
	broker.SetReconnectErr(errors.New("down"))
	logger := &MockLogger{}
	l := newLiveness(broker, logger, 2, time.Minute)

	for i := 0; i < 2; i++ {
		if err := l.ensure(); !errors.Is(err, ErrBrokerUnavailable) {
			t.Fatalf("ensure() #%d error = %v", i, err)
		}
	}
	if got := l.breakerState(); got != "open" {
		t.Fatalf("breakerState() = %q, want open", got)
	}

	err := l.ensure()
	if !errors.Is(err, ErrBrokerUnavailable) {
		t.Errorf("ensure() with open breaker error = %v, want ErrBrokerUnavailable", err)
	}
	if got := broker.Reconnects(); got != 2 {
		t.Errorf("Reconnects = %d, want 2 (open breaker skips reconnect)", got)
	}
	if logger.Count("broker reconnect breaker state changed") != 1 {
		t.Error("breaker state change not logged")
	}
}

func TestLiveness_BreakerRecovers(t *testing.T) {
	broker := NewMockBroker()
	broker.SetConnected(false)
	broker.SetReconnectErr(errors.New("down"))
	l := newLiveness(broker, &MockLogger{}, 1, 50*time.Millisecond)

	_ = l.ensure()
	if got := l.breakerState(); got != "open" {
		t.Fatalf("breakerState() = %q, want open", got)
	}

	broker.SetReconnectErr(nil)
	time.Sleep(80 * time.Millisecond)

	if err := l.ensure(); err != nil {
		t.Fatalf("ensure() after reset error = %v", err)
	}
	if got := l.breakerState(); got != "closed" {
		t.Errorf("breakerState() = %q, want closed", got)
	}
}
