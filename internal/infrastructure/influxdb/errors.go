package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: publish telemetry disabled")

	// ErrUnreachable means the startup ping did not succeed.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrNotConnected is returned after Close or on a nil client.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrBatchDropped wraps a write batch InfluxDB rejected; its points are lost.
	ErrBatchDropped = errors.New("influxdb: batch dropped")
)
