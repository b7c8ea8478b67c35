package main

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
	"github.com/nerrad567/gray-logic-relay/internal/session"
)

// sessionWriteTimeout bounds one session insert so a locked database
// cannot hold the accept loop in serial mode.
const sessionWriteTimeout = 2 * time.Second

// brokerAdapter adapts *mqtt.Client to relay.Broker.
type brokerAdapter struct {
	client *mqtt.Client
}

func (b *brokerAdapter) IsConnected() bool {
	return b.client.IsConnected()
}

func (b *brokerAdapter) Reconnect() error {
	return b.client.Reconnect()
}

func (b *brokerAdapter) Publish(msg relay.Message) error {
	return b.client.Publish(msg.Topic, msg.Payload, msg.QoS, msg.Retained)
}

// sessionRecorder stores each finished connection through session.Repository.
// Store failures are logged and never reach the relay.
type sessionRecorder struct {
	repo session.Repository
	log  *logging.Logger
}

func (r *sessionRecorder) RecordPublish(relay.PublishEvent) {}

func (r *sessionRecorder) RecordSession(s relay.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionWriteTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, toSession(s)); err != nil {
		r.log.Error("recording session failed", "peer", s.Peer, "error", err)
	}
}

func toSession(s relay.Summary) *session.Session {
	out := &session.Session{
		Peer:      s.Peer,
		Topic:     s.Topic,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Messages:  s.Messages,
		Bytes:     s.Bytes,
		Outcome:   string(s.Outcome),
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return out
}
