// Package tsdb stores relay telemetry in VictoriaMetrics.
//
// Points are written as InfluxDB line protocol to /write and read back
// with PromQL through /api/v1/query and /api/v1/query_range. It talks
// plain HTTP and needs no client library.
//
// # Usage
//
//	client, err := tsdb.Connect(ctx, cfg.TSDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	recorder := relay.NewPointRecorder(client)
//
//	raw, err := client.QueryRange(ctx, tsdb.RangeQuery{
//	    Query: tsdb.ThroughputQuery("", time.Minute),
//	    Start: time.Now().Add(-time.Hour),
//	    End:   time.Now(),
//	    Step:  time.Minute,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched and flushed
// on size or timer; flush failures go to the SetOnError callback.
package tsdb
