package stats

import (
	"fmt"
	"io"
	"sort"
)

// Report is the final run summary.
type Report struct {
	// Measured is false when the run ended before any rate sample was
	// recorded; the aggregates below are then meaningless.
	Measured   bool
	Seconds    int32
	Handshakes uint64

	RateMax int32
	RateAvg int32
	Rate95  int32
	RateMin int32

	// HasLatency is false when no handshake produced a latency sample
	// (possible in first-drive sampling mode).
	HasLatency bool
	LatMin     uint64
	LatAvg     uint64
	Lat95      uint64
	LatMax     uint64
}

// BuildReport assembles the final aggregates. Rates are sorted
// descending and latencies ascending; in both cases the 95th
// percentile is the element at 95% of the length.
func BuildReport(h *RateHistory, m *Merged, totHandshakes uint64, started bool) Report {
	rep := Report{
		Seconds:    h.Measures,
		Handshakes: totHandshakes,
	}
	if !started || len(h.Samples) < 1 {
		return rep
	}
	rep.Measured = true

	rates := make([]int32, len(h.Samples))
	for i, s := range h.Samples {
		rates[i] = s.Rate
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] > rates[j] })
	rep.RateMax = h.Max
	rep.RateAvg = h.Avg
	rep.Rate95 = rates[len(rates)*95/100]
	rep.RateMin = h.Min

	lat, sum := m.Snapshot()
	if len(lat) > 0 {
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		rep.HasLatency = true
		rep.LatMin = lat[0]
		rep.LatAvg = sum / uint64(len(lat))
		rep.Lat95 = lat[len(lat)*95/100]
		rep.LatMax = lat[len(lat)-1]
	}
	return rep
}

// Print renders the report. Aggregates that could not be computed are
// replaced by a note on errw rather than dividing by zero.
func (r Report) Print(w, errw io.Writer) {
	if !r.Measured {
		fmt.Fprintln(errw, "ERROR: not enough statistics collected")
		return
	}
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, " TOTAL:                  SECONDS %d; HANDSHAKES %d\n", r.Seconds, r.Handshakes)
	fmt.Fprintf(w, " MEASURES (seconds):     MAX h/s %d; AVG h/s %d; 95P h/s %d; MIN h/s %d\n",
		r.RateMax, r.RateAvg, r.Rate95, r.RateMin)
	if r.HasLatency {
		fmt.Fprintf(w, " LATENCY (microseconds): MIN %d; AVG %d; 95P %d; MAX %d\n",
			r.LatMin, r.LatAvg, r.Lat95, r.LatMax)
	} else {
		fmt.Fprintln(errw, "WARNING: no latency samples collected")
	}
}
