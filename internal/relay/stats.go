package relay

import (
	"sync/atomic"
	"time"
)

// Stats holds process-wide relay counters.
//
// Thread Safety:
//   - All methods are safe for concurrent use; counters are atomic.
type Stats struct {
	started time.Time

	accepted          atomic.Int64
	acceptErrors      atomic.Int64
	active            atomic.Int64
	reconnectFailures atomic.Int64

	closed   atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64

	messages atomic.Int64
	bytes    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Uptime            time.Duration `json:"-"`
	UptimeSeconds     int64         `json:"uptime_seconds"`
	Accepted          int64         `json:"connections_accepted"`
	AcceptErrors      int64         `json:"accept_errors"`
	Active            int64         `json:"connections_active"`
	ReconnectFailures int64         `json:"reconnect_failures"`
	SessionsClosed    int64         `json:"sessions_closed"`
	SessionsFailed    int64         `json:"sessions_failed"`
	SessionsRejected  int64         `json:"sessions_rejected"`
	Messages          int64         `json:"messages_published"`
	Bytes             int64         `json:"bytes_published"`
}

// NewStats returns zeroed counters with the uptime clock started.
func NewStats() *Stats {
	return &Stats{started: time.Now()}
}

// RecordPublish counts one published message.
func (s *Stats) RecordPublish(ev PublishEvent) {
	s.messages.Add(1)
	s.bytes.Add(int64(ev.Bytes))
}

// RecordSession counts one finished connection by outcome.
func (s *Stats) RecordSession(sum Summary) {
	switch sum.Outcome {
	case OutcomeClosed:
		s.closed.Add(1)
	case OutcomeFailed:
		s.failed.Add(1)
	case OutcomeRejected:
		s.rejected.Add(1)
	}
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	uptime := time.Since(s.started)
	return StatsSnapshot{
		Uptime:            uptime,
		UptimeSeconds:     int64(uptime.Seconds()),
		Accepted:          s.accepted.Load(),
		AcceptErrors:      s.acceptErrors.Load(),
		Active:            s.active.Load(),
		ReconnectFailures: s.reconnectFailures.Load(),
		SessionsClosed:    s.closed.Load(),
		SessionsFailed:    s.failed.Load(),
		SessionsRejected:  s.rejected.Load(),
		Messages:          s.messages.Load(),
		Bytes:             s.bytes.Load(),
	}
}
