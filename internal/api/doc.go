// Package api serves the relay's read-only HTTP status API.
//
// Routes (all GET, JSON):
//
//	/api/v1/health                 broker and database probes
//	/api/v1/metrics                relay counters, breaker state, runtime stats
//	/api/v1/sessions               recorded connections (peer, outcome, limit, offset)
//	/api/v1/telemetry/throughput   bytes per step from VictoriaMetrics
//
// Lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// The API never touches relaying itself; it only reads counters and stores.
package api
