package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.observe)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/telemetry/throughput", s.handleThroughput)
	})

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// handleHealth probes the broker and database. Any failing component
// turns the response into 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		Components: map[string]string{},
	}

	probe := func(name string, check func(context.Context) error) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			return
		}
		resp.Components[name] = "ok"
	}

	if s.broker != nil {
		probe("mqtt", s.broker.HealthCheck)
	}
	if s.database != nil {
		probe("database", s.database.HealthCheck)
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
