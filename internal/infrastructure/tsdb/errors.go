package tsdb

import "errors"

// Sentinel errors for the relay's telemetry store.
//
// Write-path errors never reach the relay itself; they are delivered to
// the callback set with SetOnError. Query errors are returned to the
// status API, which maps ErrInvalidQuery to 400 and the rest to 502.
var (
	// ErrDisabled is returned by Connect when tsdb.enabled is false.
	ErrDisabled = errors.New("tsdb: session telemetry disabled")

	// ErrUnreachable means the startup health probe did not succeed.
	ErrUnreachable = errors.New("tsdb: telemetry store unreachable")

	// ErrNotConnected is returned after Close or on a nil client.
	ErrNotConnected = errors.New("tsdb: not connected")

	// ErrBatchRejected wraps a failed flush of buffered line-protocol points.
	ErrBatchRejected = errors.New("tsdb: line-protocol batch rejected")

	// ErrInvalidQuery means throughput query arguments were rejected
	// before any request was sent.
	ErrInvalidQuery = errors.New("tsdb: invalid throughput query")

	// ErrQueryFailed wraps a range query the store did not answer with 200.
	ErrQueryFailed = errors.New("tsdb: range query failed")
)
