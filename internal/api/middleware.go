package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// requestID returns the ID assigned by observe, or "" outside it.
func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// observe assigns X-Request-ID (keeping the caller's), recovers handler
// panics as 500s and logs one "api request" line per call. Successful
// polling of the status endpoints is logged at debug so it does not
// drown out connection events; 5xx responses are logged at warn.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("api handler panicked", "panic", p, "path", r.URL.Path, "request_id", id)
				if !sw.wrote {
					writeError(sw, r, http.StatusInternalServerError, "internal server error")
				}
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"remote", r.RemoteAddr,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", id,
			}
			if sw.status >= http.StatusInternalServerError {
				s.logger.Warn("api request", args...)
				return
			}
			s.logger.Debug("api request", args...)
		}()

		next.ServeHTTP(sw, r)
	})
}

// statusWriter records the status code written through it.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.wrote = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}
