package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime"
	"syscall"
	"time"
)

// DefaultBufferSize is the read buffer used when Config.BufferSize is unset.
const DefaultBufferSize = 4096

// Config holds the per-connection relay settings.
type Config struct {
	// TopicPrefix is joined with the peer IP to form the publish topic.
	TopicPrefix string

	// QoS is the MQTT quality of service for every publish (0, 1 or 2).
	QoS byte

	// BufferSize bounds a single read and therefore a single message.
	BufferSize int

	// IdleTimeout fails the connection after this long without data.
	// Zero waits forever.
	IdleTimeout time.Duration
}

// Options holds what a Relay needs besides its connection.
type Options struct {
	Config   Config
	Broker   Broker
	Logger   Logger   // optional
	Recorder Recorder // optional
}

// Relay drains one client connection into the broker.
//
// Every non-empty read becomes exactly one message on the topic
// "<prefix>/<peer IP>", published in read order. A Relay is single use
// and is not safe for concurrent use.
type Relay struct {
	conn     net.Conn
	broker   Broker
	logger   Logger
	recorder Recorder

	qos         byte
	idleTimeout time.Duration
	buf         []byte

	peer      string
	topic     string
	startedAt time.Time

	messages int64
	bytes    int64
}

// New creates a Relay for conn. The topic is fixed here from the peer address.
func New(conn net.Conn, opts Options) *Relay {
	size := opts.Config.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	r := &Relay{
		conn:        conn,
		broker:      opts.Broker,
		logger:      opts.Logger,
		recorder:    opts.Recorder,
		qos:         opts.Config.QoS,
		idleTimeout: opts.Config.IdleTimeout,
		buf:         make([]byte, size),
		peer:        PeerIP(conn.RemoteAddr()),
		topic:       TopicFor(opts.Config.TopicPrefix, conn.RemoteAddr()),
	}
	if r.logger == nil {
		r.logger = nopLogger{}
	}
	if r.recorder == nil {
		r.recorder = Recorders(nil)
	}
	return r
}

// Topic returns the topic this relay publishes to.
func (r *Relay) Topic() string {
	return r.topic
}

// Run reads from the connection and publishes each chunk until the peer
// closes (nil), a read or publish fails (error), or ctx is cancelled (nil).
// The connection is always closed on return.
func (r *Relay) Run(ctx context.Context) (err error) {
	r.startedAt = time.Now()

	stop := context.AfterFunc(ctx, func() {
		r.conn.Close()
	})

	defer func() {
		stop()
		r.conn.Close()
		r.recorder.RecordSession(r.summary(err))
	}()

	for {
		n, readErr := r.read()

		// Bytes that arrive together with an error are still delivered.
		if n > 0 {
			if err := r.publish(r.buf[:n]); err != nil {
				return err
			}
		}

		if readErr == nil {
			if n == 0 {
				runtime.Gosched()
			}
			continue
		}

		switch {
		case errors.Is(readErr, io.EOF):
			return nil
		case isWouldBlock(readErr):
			continue
		case ctx.Err() != nil && errors.Is(readErr, net.ErrClosed):
			return nil
		case r.idleTimeout > 0 && errors.Is(readErr, os.ErrDeadlineExceeded):
			return fmt.Errorf("%w after %v", ErrIdleTimeout, r.idleTimeout)
		default:
			return fmt.Errorf("read from %s: %w", r.peer, readErr)
		}
	}
}

func (r *Relay) read() (int, error) {
	if r.idleTimeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.idleTimeout)); err != nil {
			return 0, fmt.Errorf("set read deadline: %w", err)
		}
	}
	return r.conn.Read(r.buf)
}

func (r *Relay) publish(chunk []byte) error {
	msg := Message{
		Topic:    r.topic,
		Payload:  bytes.Clone(chunk),
		QoS:      r.qos,
		Retained: false,
	}

	if err := r.broker.Publish(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", r.topic, err)
	}

	elapsed := time.Since(r.startedAt)
	r.messages++
	r.bytes += int64(len(msg.Payload))

	r.logger.Info("published",
		"peer", r.peer,
		"topic", r.topic,
		"bytes", len(msg.Payload),
		"elapsed", elapsed.String(),
		"payload", hexPayload(msg.Payload),
	)

	r.recorder.RecordPublish(PublishEvent{
		Peer:    r.peer,
		Topic:   r.topic,
		Bytes:   len(msg.Payload),
		Elapsed: elapsed,
	})
	return nil
}

func (r *Relay) summary(err error) Summary {
	outcome := OutcomeClosed
	if err != nil {
		outcome = OutcomeFailed
	}
	return Summary{
		Peer:      r.peer,
		Topic:     r.topic,
		StartedAt: r.startedAt,
		EndedAt:   time.Now(),
		Messages:  r.messages,
		Bytes:     r.bytes,
		Outcome:   outcome,
		Err:       err,
	}
}

// isWouldBlock reports a read that found nothing to read yet.
func isWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// hexPayload logs as space-separated hex bytes. The dump is only built
// when a handler emits the record.
type hexPayload []byte

func (h hexPayload) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("% x", []byte(h)))
}
