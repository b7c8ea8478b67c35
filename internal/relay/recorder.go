package relay

import (
	"time"
)

// Outcome describes how a relayed connection ended.
type Outcome string

// Session outcomes.
const (
	OutcomeClosed   Outcome = "closed"
	OutcomeFailed   Outcome = "failed"
	OutcomeRejected Outcome = "rejected"
)

// PublishEvent describes one successful publish.
type PublishEvent struct {
	Peer    string
	Topic   string
	Bytes   int
	Elapsed time.Duration
}

// Summary describes one accepted connection once it has finished.
type Summary struct {
	Peer      string
	Topic     string
	StartedAt time.Time
	EndedAt   time.Time
	Messages  int64
	Bytes     int64
	Outcome   Outcome
	Err       error
}

// Duration returns how long the connection was relayed.
func (s Summary) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// Recorder receives relay events. Calls are fire-and-forget: implementations
// must not block the relay for long and handle their own errors.
type Recorder interface {
	RecordPublish(ev PublishEvent)
	RecordSession(s Summary)
}

// Recorders fans events out to several recorders in order.
type Recorders []Recorder

// RecordPublish forwards ev to every recorder.
func (rs Recorders) RecordPublish(ev PublishEvent) {
	for _, r := range rs {
		r.RecordPublish(ev)
	}
}

// RecordSession forwards s to every recorder.
func (rs Recorders) RecordSession(s Summary) {
	for _, r := range rs {
		r.RecordSession(s)
	}
}

// PointWriter writes one telemetry point.
// Both the InfluxDB and VictoriaMetrics clients implement it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// Telemetry measurement names.
const (
	MeasurementPublish = "relay_publish"
	MeasurementSession = "relay_session"
)

// PointRecorder turns relay events into telemetry points.
type PointRecorder struct {
	w PointWriter
}

// NewPointRecorder returns a Recorder writing to w.
func NewPointRecorder(w PointWriter) *PointRecorder {
	return &PointRecorder{w: w}
}

// RecordPublish writes a relay_publish point.
func (p *PointRecorder) RecordPublish(ev PublishEvent) {
	p.w.WritePoint(MeasurementPublish,
		map[string]string{"peer": ev.Peer, "topic": ev.Topic},
		map[string]interface{}{
			"bytes":      int64(ev.Bytes),
			"elapsed_ms": float64(ev.Elapsed.Microseconds()) / 1000,
		},
	)
}

// RecordSession writes a relay_session point.
func (p *PointRecorder) RecordSession(s Summary) {
	p.w.WritePoint(MeasurementSession,
		map[string]string{"peer": s.Peer, "outcome": string(s.Outcome)},
		map[string]interface{}{
			"messages":    s.Messages,
			"bytes":       s.Bytes,
			"duration_ms": float64(s.Duration().Microseconds()) / 1000,
		},
	)
}
