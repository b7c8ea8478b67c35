package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/tsdb"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
	"github.com/nerrad567/gray-logic-relay/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each component probe in /health.
const healthCheckTimeout = 2 * time.Second

// RelayStatus exposes the relay counters. Satisfied by *relay.Server.
type RelayStatus interface {
	Stats() *relay.Stats
	BreakerState() string
}

// BrokerStatus reports broker connectivity. Satisfied by *mqtt.Client.
type BrokerStatus interface {
	IsConnected() bool
	HealthCheck(ctx context.Context) error
}

// DatabaseStatus reports session store health. Satisfied by *database.DB.
type DatabaseStatus interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
}

// ThroughputQuerier runs PromQL range queries. Satisfied by *tsdb.Client.
type ThroughputQuerier interface {
	QueryRange(ctx context.Context, q tsdb.RangeQuery) (json.RawMessage, error)
}

// Deps holds the dependencies required by the API server.
// Broker, Database, Sessions and Telemetry are optional; leave them nil
// when the component is not running.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Relay     RelayStatus
	Broker    BrokerStatus
	Database  DatabaseStatus
	Sessions  session.Repository
	Telemetry ThroughputQuerier
	Version   string
}

// Server is the HTTP status API for the relay.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	relay     RelayStatus
	broker    BrokerStatus
	database  DatabaseStatus
	sessions  session.Repository
	telemetry ThroughputQuerier
	version   string

	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
// The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("relay status is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		relay:     deps.Relay,
		broker:    deps.Broker,
		database:  deps.Database,
		sessions:  deps.Sessions,
		telemetry: deps.Telemetry,
		version:   deps.Version,
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the API address and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
