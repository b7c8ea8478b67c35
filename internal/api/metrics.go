package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp string              `json:"timestamp"`
	Version   string              `json:"version"`
	Relay     relay.StatsSnapshot `json:"relay"`
	Breaker   string              `json:"reconnect_breaker"`
	Runtime   RuntimeMetrics      `json:"runtime"`
	MQTT      MQTTMetrics         `json:"mqtt"`
	Database  *DatabaseMetrics    `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains broker connection state.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.version,
		Relay:     s.relay.Stats().Snapshot(),
		Breaker:   s.relay.BreakerState(),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.broker != nil {
		metrics.MQTT.Connected = s.broker.IsConnected()
	}

	if s.database != nil {
		dbStats := s.database.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
