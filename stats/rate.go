package stats

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// HistoryCap bounds the rate history to an hour of one-second samples.
const HistoryCap = 3600

// RateSample is one per-second handshake-rate observation.
type RateSample struct {
	Time time.Time
	Rate int32 // handshakes per second over the sampled interval
}

// RateHistory accumulates per-second handshake rates with running
// min/max/avg. Owned by the supervisor only; no locking.
type RateHistory struct {
	Samples  []RateSample
	Measures int32
	Min      int32
	Max      int32
	Avg      int32

	warned bool
}

// Add appends one rate sample and updates the running aggregates. Past
// HistoryCap samples the excess is discarded with a single warning.
func (h *RateHistory) Add(now time.Time, rate int32) {
	h.Measures++
	if h.Max < rate {
		h.Max = rate
	}
	// A zero rate never becomes the minimum: idle seconds before the
	// server warms up would pin MIN to zero for the whole run.
	if rate != 0 && (h.Min > rate || h.Min == 0) {
		h.Min = rate
	}
	h.Avg = (h.Avg*(h.Measures-1) + rate) / h.Measures
	if len(h.Samples) >= HistoryCap {
		if !h.warned {
			log.Warn("benchmark is running for too long, latest history won't be stored")
			h.warned = true
		}
		return
	}
	h.Samples = append(h.Samples, RateSample{Time: now, Rate: rate})
}
