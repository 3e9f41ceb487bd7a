package stats

import (
	"testing"
	"time"
)

func TestRateHistoryAggregates(t *testing.T) {
	h := &RateHistory{}
	now := time.Now()

	for _, rate := range []int32{100, 50, 0, 200} {
		h.Add(now, rate)
		now = now.Add(time.Second)
	}

	if h.Measures != 4 {
		t.Fatalf("measures = %d, want 4", h.Measures)
	}
	if h.Max != 200 {
		t.Fatalf("max = %d, want 200", h.Max)
	}
	// Zero samples never become the minimum.
	if h.Min != 50 {
		t.Fatalf("min = %d, want 50", h.Min)
	}
	// Integer running average: ((100*0+100)/1 -> 100, (100+50)/2 -> 75,
	// (75*2+0)/3 -> 50, (50*3+200)/4 -> 87.
	if h.Avg != 87 {
		t.Fatalf("avg = %d, want 87", h.Avg)
	}
	if len(h.Samples) != 4 {
		t.Fatalf("samples = %d, want 4", len(h.Samples))
	}
}

func TestRateHistoryCap(t *testing.T) {
	h := &RateHistory{}
	now := time.Now()

	for i := 0; i < HistoryCap+100; i++ {
		h.Add(now, int32(i+1))
		now = now.Add(time.Second)
	}

	if len(h.Samples) != HistoryCap {
		t.Fatalf("history grew past the cap: %d", len(h.Samples))
	}
	// Aggregates still track the discarded tail.
	if h.Measures != HistoryCap+100 {
		t.Fatalf("measures = %d, want %d", h.Measures, HistoryCap+100)
	}
	if h.Max != HistoryCap+100 {
		t.Fatalf("max = %d, want %d", h.Max, HistoryCap+100)
	}
}
