package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/tsdb"
)

// Throughput query bounds.
const (
	defaultThroughputWindow = time.Hour
	defaultThroughputStep   = time.Minute
	maxThroughputWindow     = 7 * 24 * time.Hour
	maxThroughputPoints     = 11000
)

// handleThroughput returns published bytes per step from VictoriaMetrics.
// The Prometheus API response is passed through unchanged.
//
// Query parameters:
//   - peer: restrict to one client IP
//   - window: how far back to look (Go duration, default 1h, max 168h)
//   - step: resolution (Go duration, default 1m)
func (s *Server) handleThroughput(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		writeError(w, r, http.StatusServiceUnavailable, "telemetry store not enabled")
		return
	}

	q := r.URL.Query()

	window, ok := durationParam(q.Get("window"), defaultThroughputWindow)
	if !ok || window > maxThroughputWindow {
		writeError(w, r, http.StatusBadRequest, "window must be a positive duration no longer than 168h")
		return
	}
	step, ok := durationParam(q.Get("step"), defaultThroughputStep)
	if !ok || step > window {
		writeError(w, r, http.StatusBadRequest, "step must be a positive duration no longer than window")
		return
	}
	if window/step > maxThroughputPoints {
		writeError(w, r, http.StatusBadRequest, "step too small for window")
		return
	}

	end := time.Now()
	raw, err := s.telemetry.QueryRange(r.Context(), tsdb.RangeQuery{
		Query: tsdb.ThroughputQuery(q.Get("peer"), step),
		Start: end.Add(-window),
		End:   end,
		Step:  step,
	})
	if err != nil {
		if errors.Is(err, tsdb.ErrInvalidQuery) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("throughput query failed", "error", err, "request_id", requestID(r))
		writeError(w, r, http.StatusBadGateway, "telemetry query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// durationParam parses an optional positive duration.
func durationParam(v string, fallback time.Duration) (time.Duration, bool) {
	if v == "" {
		return fallback, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
