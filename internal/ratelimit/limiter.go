package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// defaultCleanupInterval applies when the config leaves cleanup_interval unset.
const defaultCleanupInterval = time.Minute

// Limiter tracks a token bucket per client IP.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit   rate.Limit
	burst   int
	cleanup time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter from the listener rate limit settings and starts
// its cleanup loop. Call Stop to release the loop.
func New(cfg config.RateLimitConfig) *Limiter {
	cleanup := time.Duration(cfg.CleanupInterval) * time.Second
	if cleanup <= 0 {
		cleanup = defaultCleanupInterval
	}
	return newLimiter(cfg.ConnectionsPerSecond, cfg.Burst, cleanup)
}

func newLimiter(perSecond float64, burst int, cleanup time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		cleanup: cleanup,
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a new connection from addr may proceed and
// consumes a token if so. Addresses without an IP are always allowed.
func (l *Limiter) Allow(addr net.Addr) bool {
	ip := hostOf(addr)
	if ip == "" {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	lim := b.limiter
	l.mu.Unlock()

	return lim.AllowN(now, 1)
}

// Len returns the number of IPs currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanup)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			l.sweep(now)
		case <-l.stopCh:
			return
		}
	}
}

// sweep drops buckets idle for more than two cleanup intervals.
func (l *Limiter) sweep(now time.Time) {
	threshold := now.Add(-2 * l.cleanup)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if b.lastSeen.Before(threshold) {
			delete(l.buckets, ip)
		}
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// hostOf extracts the IP part of addr.
func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	switch a := addr.(type) {
	case *net.TCPAddr:
		if a == nil || a.IP == nil {
			return ""
		}
		return a.IP.String()
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return addr.String()
		}
		return host
	}
}
