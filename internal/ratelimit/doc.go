// Package ratelimit throttles how often a single client IP may open
// connections to the relay.
//
// Each IP gets its own token bucket (golang.org/x/time/rate). Buckets
// for IPs that have not connected for two cleanup intervals are dropped
// by a background sweep, so the table stays bounded under churn.
//
//	limiter := ratelimit.New(cfg.Listener.RateLimit)
//	defer limiter.Stop()
//
//	if !limiter.Allow(conn.RemoteAddr()) {
//	    conn.Close()
//	}
package ratelimit
