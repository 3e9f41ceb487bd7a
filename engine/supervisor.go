package engine

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/muhtutorials/tlsburst/stats"
)

// Supervisor spawns the workers, ticks once per second to sample the
// handshake rate and enforces the time and handshake budgets.
type Supervisor struct {
	cfg  *Config
	st   *stats.Stats
	hist *stats.RateHistory
}

func NewSupervisor(cfg *Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Supervisor{
		cfg:  cfg,
		st:   stats.New(),
		hist: &stats.RateHistory{},
	}, nil
}

// Stats exposes the shared state, for signal wiring and metrics.
func (s *Supervisor) Stats() *stats.Stats {
	return s.st
}

// Stop requests termination; workers drain and exit.
func (s *Supervisor) Stop() {
	s.st.F.Stop.Store(true)
}

func (s *Supervisor) endOfWork() bool {
	return s.st.F.Stop.Load() || s.st.C.TotTLSHandshakes.Load() >= s.cfg.Budget()
}

// Run executes the whole benchmark and returns the final report. The
// returned error is a worker-fatal or setup failure; the caller maps
// it to a non-zero exit.
func (s *Supervisor) Run() (stats.Report, error) {
	workers := make([]*Worker, s.cfg.Workers)
	for i := range workers {
		w, err := NewWorker(i, s.cfg, s.st)
		if err != nil {
			for _, prev := range workers[:i] {
				prev.r.Close()
			}
			return stats.Report{}, err
		}
		workers[i] = w
	}

	errc := make(chan error, len(workers))
	var wg sync.WaitGroup
	for i, w := range workers {
		log.Debugf("spawn worker %d", i+1)
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			// One worker per OS thread; each owns its reactor.
			runtime.LockOSThread()
			if err := w.Run(); err != nil {
				errc <- err
				s.Stop()
			}
		}(w)
	}

	start := time.Now()
	last := start
	for !s.endOfWork() {
		time.Sleep(time.Second)
		last = s.tick(last)
		if s.cfg.Duration > 0 && time.Since(start) >= s.cfg.Duration {
			s.Stop()
		}
	}
	s.Stop()
	wg.Wait()

	select {
	case err := <-errc:
		return stats.Report{}, err
	default:
	}

	rep := stats.BuildReport(s.hist, &s.st.Lat, s.st.C.TotTLSHandshakes.Load(), s.st.F.StartStats.Load())
	return rep, nil
}

// tick samples the handshake delta since the previous tick, prints the
// live line and, once measuring has started, appends the rate sample.
func (s *Supervisor) tick(last time.Time) time.Time {
	tlsConns := s.st.C.TLSConns.Load()

	now := time.Now()
	dt := now.Sub(last).Milliseconds()
	if dt <= 0 {
		dt = 1
	}
	s.st.C.TLSConns.Add(-tlsConns)

	rate := int32(1000 * int64(tlsConns) / dt)
	fmt.Printf("TLS hs in progress %d [%d h/s], TCP open conns %d [%d hs in progress], Errors %d\n",
		s.st.C.TLSHandshakes.Load(), rate,
		s.st.C.TCPConns.Load(), s.st.C.TCPHandshakes.Load(),
		s.st.C.Errors.Load())

	if s.st.F.StartStats.Load() {
		s.hist.Add(now, rate)
	}
	return now
}
