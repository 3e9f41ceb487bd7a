package stats

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/cpu"
)

// RingSize is the per-worker latency sample capacity.
const RingSize = 1024

// Ring records microsecond handshake durations for one worker. It is
// owned by that worker alone and never synchronized during the run.
//
// Samples are written in ring buffer fashion, but with a growing
// stride so that later results blend with earlier ones instead of
// rewriting whole generations: after each write the index advances by
// the stride; on wrap the stride grows by one, cycling back to one
// past RingSize/4.
type Ring struct {
	i, d uint32
	buf  [RingSize]uint64

	_ cpu.CacheLinePad
}

func NewRing() *Ring {
	return &Ring{d: 1}
}

// Update records one duration in microseconds. A zero duration marks
// "never written" in the buffer and is rejected.
func (r *Ring) Update(us uint64) {
	if us == 0 {
		log.Debug("bad zero latency")
		return
	}
	r.buf[r.i] = us
	r.i += r.d
	if r.i >= RingSize {
		r.i = 0
		r.d++
		if r.d > RingSize/4 {
			r.d = 1
		}
	}
}

// Dump flushes the ring into the merged collection. Called once, when
// the owning worker exits.
func (r *Ring) Dump(m *Merged) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, us := range r.buf {
		if us == 0 {
			break
		}
		m.samples = append(m.samples, us)
		m.sum += us
	}
}

// Merged is the process-wide latency collection, populated only at
// worker exit.
type Merged struct {
	mu      sync.Mutex
	samples []uint64
	sum     uint64
}

// Snapshot returns a copy of the collected samples and their sum.
func (m *Merged) Snapshot() ([]uint64, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.samples))
	copy(out, m.samples)
	return out, m.sum
}
