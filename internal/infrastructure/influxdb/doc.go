// Package influxdb writes relay telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Writes go through
// the non-blocking, batched WriteAPI; rejected batches are dropped and
// reported through SetOnError.
//
// The relay writes two measurements:
//   - relay_publish: one point per published message (bytes, elapsed_ms)
//   - relay_session: one point per finished connection (messages, bytes, duration_ms)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	recorder := relay.NewPointRecorder(client)
package influxdb
