package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ConnLimiter decides whether a newly accepted peer may be relayed.
// It is satisfied by *ratelimit.Limiter.
type ConnLimiter interface {
	Allow(addr net.Addr) bool
}

// ServerOptions holds configuration and dependencies for a Server.
type ServerOptions struct {
	// Address is the host:port to listen on.
	Address string

	// Relay holds the per-connection settings.
	Relay Config

	// MaxConnections bounds simultaneous relays. Values <= 1 relay one
	// connection at a time on the accept goroutine.
	MaxConnections int

	// KeepAlive enables TCP keepalive with this period when > 0.
	KeepAlive time.Duration

	// BreakerThreshold enables the reconnect circuit breaker when > 0.
	BreakerThreshold int
	BreakerReset     time.Duration

	Broker   Broker
	Logger   Logger      // optional
	Limiter  ConnLimiter // optional
	Recorder Recorder    // optional
	Stats    *Stats      // optional, created when nil
}

// Server accepts TCP connections and relays each one to the broker.
//
// In the default serial mode the next connection is accepted only after
// the current one has finished; later clients wait in the listen backlog.
// With MaxConnections > 1 each connection runs in its own goroutine and
// the accept loop blocks while every slot is busy. Messages from one
// connection stay in order; there is no ordering across connections.
type Server struct {
	address   string
	relayCfg  Config
	keepAlive time.Duration

	broker   Broker
	logger   Logger
	limiter  ConnLimiter
	recorder Recorder
	stats    *Stats
	liveness *liveness

	// sem bounds concurrent relays; nil in serial mode.
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// listen opens the TCP listener; net.Listen outside tests.
	listen func(network, address string) (net.Listener, error)

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a Server. Call Listen then Serve.
//
// Returns:
//   - *Server: Configured server, not yet listening
//   - error: If required options are missing
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if opts.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	stats := opts.Stats
	if stats == nil {
		stats = NewStats()
	}

	recorders := Recorders{stats}
	if opts.Recorder != nil {
		recorders = append(recorders, opts.Recorder)
	}

	s := &Server{
		address:   opts.Address,
		relayCfg:  opts.Relay,
		keepAlive: opts.KeepAlive,
		broker:    opts.Broker,
		logger:    logger,
		limiter:   opts.Limiter,
		recorder:  recorders,
		stats:     stats,
		liveness:  newLiveness(opts.Broker, logger, opts.BreakerThreshold, opts.BreakerReset),
		listen:    net.Listen,
	}
	if opts.MaxConnections > 1 {
		s.sem = semaphore.NewWeighted(int64(opts.MaxConnections))
	}
	return s, nil
}

// Listen binds the TCP listener. A failure here is fatal for the caller.
func (s *Server) Listen() error {
	ln, err := s.listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("listener bound", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats returns the server's counters.
func (s *Server) Stats() *Stats {
	return s.stats
}

// BreakerState returns the reconnect breaker state ("closed", "open",
// "half-open") or "disabled".
func (s *Server) BreakerState() string {
	return s.liveness.breakerState()
}

// Serve runs the accept loop until ctx is cancelled.
//
// Accept errors are logged and the loop continues. Cancelling ctx closes
// the listener and every live connection; Serve waits for running relays
// and returns nil. If the listener is closed by anything else, Serve
// returns the accept error.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()
	defer s.wg.Wait()

	for {
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.sem != nil {
				s.sem.Release(1)
			}
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			s.stats.acceptErrors.Add(1)
			s.logger.Error("accept failed", "error", err)
			continue
		}

		if s.sem == nil {
			s.handle(ctx, conn)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.handle(ctx, conn)
		}()
	}
}

// handle runs one accepted connection to completion. Nothing it does can
// stop the accept loop.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	peer := conn.RemoteAddr()
	s.stats.accepted.Add(1)
	s.logger.Info("accepted connection", "peer", peer.String())

	if s.limiter != nil && !s.limiter.Allow(peer) {
		s.logger.Warn("connection rate limited", "peer", peer.String())
		s.reject(conn, ErrRateLimited)
		return
	}

	if err := s.liveness.ensure(); err != nil {
		s.stats.reconnectFailures.Add(1)
		s.logger.Error("broker reconnect failed", "peer", peer.String(), "error", err)
		s.reject(conn, err)
		return
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := s.configureTCPConn(tcp); err != nil {
			s.logger.Warn("failed to configure TCP connection", "peer", peer.String(), "error", err)
		}
	}

	s.stats.active.Add(1)
	defer s.stats.active.Add(-1)

	r := New(conn, Options{
		Config:   s.relayCfg,
		Broker:   s.broker,
		Logger:   s.logger,
		Recorder: s.recorder,
	})
	if err := r.Run(ctx); err != nil {
		s.logger.Error("relay failed", "peer", peer.String(), "topic", r.Topic(), "error", err)
		return
	}
	s.logger.Debug("connection closed", "peer", peer.String(), "topic", r.Topic())
}

// reject closes a connection that will not be relayed and records it.
func (s *Server) reject(conn net.Conn, reason error) {
	conn.Close()

	now := time.Now()
	s.recorder.RecordSession(Summary{
		Peer:      PeerIP(conn.RemoteAddr()),
		Topic:     TopicFor(s.relayCfg.TopicPrefix, conn.RemoteAddr()),
		StartedAt: now,
		EndedAt:   now,
		Outcome:   OutcomeRejected,
		Err:       reason,
	})
}

// configureTCPConn applies socket options to an accepted connection.
func (s *Server) configureTCPConn(conn *net.TCPConn) error {
	if s.keepAlive > 0 {
		if err := conn.SetKeepAlive(true); err != nil {
			return fmt.Errorf("enable keepalive: %w", err)
		}
		if err := conn.SetKeepAlivePeriod(s.keepAlive); err != nil {
			return fmt.Errorf("set keepalive period: %w", err)
		}
	}
	if err := conn.SetNoDelay(true); err != nil {
		return fmt.Errorf("set TCP_NODELAY: %w", err)
	}
	return nil
}
