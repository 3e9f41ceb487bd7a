package engine

import (
	"fmt"

	"github.com/muhtutorials/tlsburst/stats"
)

// peersSlowStart is the initial concurrent-connection allowance; the
// population grows by one per completed cycle until the target.
const peersSlowStart = 10

// Worker runs one reactor and its peer population on one thread.
type Worker struct {
	id    int
	cfg   *Config
	st    *stats.Stats
	r     *Reactor
	ring  *stats.Ring
	peers []*Peer
}

func NewWorker(id int, cfg *Config, st *stats.Stats) (*Worker, error) {
	r, err := NewReactor(cfg)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", id, err)
	}
	return &Worker{
		id:   id,
		cfg:  cfg,
		st:   st,
		r:    r,
		ring: stats.NewRing(),
	}, nil
}

func (w *Worker) endOfWork() bool {
	return w.st.F.Stop.Load() || w.st.C.TotTLSHandshakes.Load() >= w.cfg.Budget()
}

// Run pumps the reactor until the stop flag is set or the handshake
// budget is reached. On exit the latency ring is flushed into the
// merged collection and all peers are torn down.
func (w *Worker) Run() error {
	defer w.shutdown()

	target := w.cfg.PeersPerWorker
	activePeers := 0
	newPeers := min(target, peersSlowStart)

	for !w.endOfWork() {
		// Slow start: activePeers grows toward the target one grant
		// per completed cycle.
		for ; activePeers < target && newPeers > 0; newPeers-- {
			p := newPeer(activePeers, w.cfg, w.r, w.st, w.ring)
			activePeers++
			w.peers = append(w.peers, p)
			progress, err := p.advance()
			if err != nil {
				return err
			}
			if progress && activePeers+newPeers < target {
				newPeers++
			}
		}

		if err := w.r.Wait(); err != nil {
			return err
		}
		for p := w.r.NextReady(); p != nil; p = w.r.NextReady() {
			progress, err := p.advance()
			if err != nil {
				return err
			}
			if progress && activePeers+newPeers < target {
				newPeers++
			}
		}

		// Reconnect peers that completed a cycle this iteration. The
		// drain is skipped once termination is requested, so no new
		// sockets are opened during shutdown.
		w.r.RotateBacklog()
		for !w.st.F.Stop.Load() {
			p := w.r.NextBacklog()
			if p == nil {
				break
			}
			progress, err := p.advance()
			if err != nil {
				return err
			}
			if progress && activePeers+newPeers < target {
				newPeers++
			}
		}

		if activePeers == target && !w.st.F.StartStats.Load() {
			if w.st.F.StartStats.CompareAndSwap(false, true) {
				fmt.Println("( All peers are active, start to gather statistics )")
			}
		}
	}
	return nil
}

func (w *Worker) shutdown() {
	for _, p := range w.peers {
		p.disconnect()
	}
	w.ring.Dump(&w.st.Lat)
	w.r.Close()
	w.peers = nil
}
