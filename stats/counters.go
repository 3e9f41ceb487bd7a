// Package stats holds the process-wide run statistics: the atomic
// counter block the workers update on every peer transition, the
// per-worker latency rings, the merged latency collection and the
// rolling per-second handshake-rate history.
package stats

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Counters is the hot counter block shared by all workers. The
// counters are observational: relaxed visibility between workers is
// fine, nothing synchronizes on them. Padded so the block does not
// share a cache line with neighboring fields.
type Counters struct {
	// TotTLSHandshakes counts completed TLS handshakes over the whole
	// run. Monotonically non-decreasing.
	TotTLSHandshakes atomic.Uint64
	// TCPHandshakes counts peers with a TCP connect in flight.
	TCPHandshakes atomic.Int32
	// TCPConns counts peers holding an established TCP connection.
	TCPConns atomic.Int32
	// TLSConns counts TLS handshakes completed since the last
	// supervisor tick; the supervisor subtracts what it samples.
	TLSConns atomic.Int32
	// TLSHandshakes counts peers with a TLS handshake in flight.
	TLSHandshakes atomic.Int32
	// Errors counts transient TLS handshake failures after the first
	// success. Transient TCP connect failures are retried but not counted.
	Errors atomic.Int32

	_ cpu.CacheLinePad
}

// Flags are the cross-thread run latches.
type Flags struct {
	// Stop is set by the supervisor on SIGINT/SIGTERM, duration expiry
	// or a worker-fatal error; workers drain and exit when they see it.
	Stop atomic.Bool
	// StartStats is set once, by the first worker to reach its full
	// peer target; rate samples are only recorded after that.
	StartStats atomic.Bool
	// FirstTCP latches when any TCP connect has ever succeeded. A TCP
	// failure before that is fatal: the target is unreachable.
	FirstTCP atomic.Bool
	// FirstTLS latches when any TLS handshake has ever completed.
	FirstTLS atomic.Bool

	_ cpu.CacheLinePad
}

// Stats bundles everything the workers and the supervisor share.
type Stats struct {
	C   Counters
	F   Flags
	Lat Merged
}

func New() *Stats {
	return &Stats{}
}
