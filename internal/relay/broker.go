package relay

import (
	"net"
	"strings"
)

// Broker is the shared handle to the MQTT broker.
//
// Implementations must be safe for concurrent use and serialise
// Reconnect internally; the relay may call it while another reconnect
// is already in flight.
type Broker interface {
	// IsConnected reports the current connection state.
	IsConnected() bool

	// Reconnect blocks until the broker connection is open or the attempt fails.
	Reconnect() error

	// Publish blocks until the broker has accepted the message.
	Publish(msg Message) error
}

// Logger is the event sink used by the relay.
// It is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Message is one chunk of bytes read from a client, addressed to the broker.
// A new Message is built for every non-empty read.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// TopicFor returns the topic for data read from peer: "<prefix>/<peer IP>".
func TopicFor(prefix string, peer net.Addr) string {
	return strings.TrimRight(prefix, "/") + "/" + PeerIP(peer)
}

// PeerIP returns the IP part of a peer address, without port or zone brackets.
func PeerIP(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	if tcp, ok := addr.(*net.TCPAddr); ok && tcp != nil && tcp.IP != nil {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
