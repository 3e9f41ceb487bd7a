package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestBuildReportPercentiles(t *testing.T) {
	h := &RateHistory{}
	now := time.Now()
	// 20 samples: rates 1..20.
	for i := int32(1); i <= 20; i++ {
		h.Add(now, i)
		now = now.Add(time.Second)
	}

	m := &Merged{}
	r := NewRing()
	// 20 latencies: 10, 20, ..., 200 µs.
	for i := 1; i <= 20; i++ {
		r.Update(uint64(i * 10))
	}
	r.Dump(m)

	rep := BuildReport(h, m, 1234, true)
	if !rep.Measured {
		t.Fatal("report not measured despite samples")
	}
	if rep.Handshakes != 1234 || rep.Seconds != 20 {
		t.Fatalf("totals wrong: %+v", rep)
	}
	if rep.RateMax != 20 || rep.RateMin != 1 {
		t.Fatalf("rate extremes wrong: %+v", rep)
	}
	// Descending rates [20..1], element at 20*95/100 = index 19 -> 1.
	if rep.Rate95 != 1 {
		t.Fatalf("rate 95P = %d, want 1", rep.Rate95)
	}
	if !rep.HasLatency {
		t.Fatal("latency samples lost")
	}
	// Ascending latencies, element at 20*95/100 = index 19 -> 200.
	if rep.Lat95 != 200 {
		t.Fatalf("latency 95P = %d, want 200", rep.Lat95)
	}
	if rep.LatMin != 10 || rep.LatMax != 200 {
		t.Fatalf("latency extremes wrong: %+v", rep)
	}
	// Sum 10+20+...+200 = 2100, avg = 105.
	if rep.LatAvg != 105 {
		t.Fatalf("latency avg = %d, want 105", rep.LatAvg)
	}

	if rep.Rate95 > rep.RateMax || rep.RateAvg > rep.RateMax || rep.RateMin > rep.RateAvg {
		t.Fatalf("aggregate ordering violated: %+v", rep)
	}
}

func TestBuildReportWithoutSamples(t *testing.T) {
	rep := BuildReport(&RateHistory{}, &Merged{}, 1, true)
	if rep.Measured {
		t.Fatal("empty history must not be measured")
	}
	rep = BuildReport(&RateHistory{}, &Merged{}, 1, false)
	if rep.Measured {
		t.Fatal("unstarted stats must not be measured")
	}

	var out, errw bytes.Buffer
	rep.Print(&out, &errw)
	if out.Len() != 0 {
		t.Fatalf("unmeasured report printed aggregates: %q", out.String())
	}
	if !strings.Contains(errw.String(), "not enough statistics collected") {
		t.Fatalf("missing underflow warning: %q", errw.String())
	}
}

func TestReportPrintFormat(t *testing.T) {
	h := &RateHistory{}
	h.Add(time.Now(), 10)

	m := &Merged{}
	r := NewRing()
	r.Update(150)
	r.Dump(m)

	rep := BuildReport(h, m, 10, true)

	var out, errw bytes.Buffer
	rep.Print(&out, &errw)
	s := out.String()
	for _, want := range []string{
		"========================================",
		" TOTAL:                  SECONDS 1; HANDSHAKES 10",
		"MAX h/s 10",
		"LATENCY (microseconds): MIN 150",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("report output missing %q:\n%s", want, s)
		}
	}
}

func TestReportWithoutLatency(t *testing.T) {
	h := &RateHistory{}
	h.Add(time.Now(), 5)

	rep := BuildReport(h, &Merged{}, 5, true)
	if rep.HasLatency {
		t.Fatal("no samples but HasLatency set")
	}

	var out, errw bytes.Buffer
	rep.Print(&out, &errw)
	if !strings.Contains(errw.String(), "no latency samples") {
		t.Fatalf("missing latency warning: %q", errw.String())
	}
}
