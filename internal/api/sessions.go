package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-relay/internal/session"
)

// handleListSessions returns recorded connection sessions, newest first.
//
// Query parameters:
//   - peer: filter by client IP
//   - outcome: closed, failed or rejected
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "session recording not enabled")
		return
	}

	q := r.URL.Query()
	filter := session.Filter{
		Peer:    q.Get("peer"),
		Outcome: q.Get("outcome"),
	}

	switch filter.Outcome {
	case "", session.OutcomeClosed, session.OutcomeFailed, session.OutcomeRejected:
	default:
		writeError(w, r, http.StatusBadRequest, "outcome must be closed, failed or rejected")
		return
	}

	var ok bool
	if filter.Limit, ok = intParam(q.Get("limit")); !ok {
		writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, ok = intParam(q.Get("offset")); !ok {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	result, err := s.sessions.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err, "request_id", requestID(r))
		writeError(w, r, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer; empty is zero.
func intParam(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
