package engine

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/muhtutorials/tlsburst/conn"
	"github.com/muhtutorials/tlsburst/stats"
)

type peerState int

const (
	stateConnect peerState = iota
	stateConnecting
	stateHandshaking
)

// Peer is one concurrent connection slot. It cycles indefinitely
// through TCP connect, TLS handshake and teardown, re-arming itself
// through the reactor's reconnect queue.
//
// Resource ownership follows the state: CONNECT holds neither socket
// nor session, CONNECTING holds only the socket, HANDSHAKING holds
// both. The peer owns its fd and session exclusively; the reactor keeps
// only a non-owning reference, indexed by slot id, for event dispatch.
type Peer struct {
	id    int
	state peerState
	fd    int
	sess  *session

	ep     conn.Endpoint
	polled bool

	hsStart time.Time

	r    *Reactor
	st   *stats.Stats
	ring *stats.Ring
	cfg  *Config
}

func newPeer(id int, cfg *Config, r *Reactor, st *stats.Stats, ring *stats.Ring) *Peer {
	p := &Peer{
		id:   id,
		fd:   -1,
		ep:   cfg.Target,
		r:    r,
		st:   st,
		ring: ring,
		cfg:  cfg,
	}
	p.dbg("created")
	return p
}

// advance drives the peer one step. The returned bool reports progress
// toward a completed cycle; the worker uses it to speed up the
// slow-start ramp. A non-nil error is fatal for the whole worker.
func (p *Peer) advance() (bool, error) {
	switch p.state {
	case stateConnect:
		return p.tcpConnect()
	case stateConnecting:
		return p.tcpConnectTryFinish()
	case stateHandshaking:
		return p.tlsHandshake()
	}
	return false, fmt.Errorf("peer %d: bad state %d", p.id, p.state)
}

func (p *Peer) tcpConnect() (bool, error) {
	fd, err := conn.Socket(p.ep.Family())
	if err != nil {
		return false, fmt.Errorf("cannot create a socket: %w", err)
	}
	p.fd = fd
	errno := conn.StartConnect(fd, p.ep)
	p.st.C.TCPHandshakes.Add(1)
	p.state = stateConnecting
	// On localhost connect() can complete instantly even on
	// non-blocking sockets.
	if errno == 0 {
		return p.handleEstablishedTCPConn()
	}
	return false, p.handleConnectError(errno)
}

func (p *Peer) tcpConnectTryFinish() (bool, error) {
	errno, err := conn.SockErr(p.fd)
	if err != nil {
		return false, fmt.Errorf("cannot get a socket connect() status: %w", err)
	}
	if errno == 0 {
		return p.handleEstablishedTCPConn()
	}
	return false, p.handleConnectError(errno)
}

func (p *Peer) handleEstablishedTCPConn() (bool, error) {
	p.dbg("has established TCP connection")
	p.st.C.TCPHandshakes.Add(-1)
	p.st.C.TCPConns.Add(1)
	p.st.F.FirstTCP.Store(true)
	return p.tlsHandshake()
}

func (p *Peer) handleConnectError(errno unix.Errno) error {
	if errno == unix.EINPROGRESS || errno == unix.EAGAIN {
		// Keep waiting on the TCP handshake.
		return p.addToPoll()
	}
	if !p.st.F.FirstTCP.Load() {
		return fmt.Errorf("cannot establish even one TCP connection (%s)", errno.Error())
	}
	p.st.C.TCPHandshakes.Add(-1)
	p.disconnect()
	// Retry on the next iteration, without backoff.
	p.r.QueueReconnect(p)
	return nil
}

func (p *Peer) tlsHandshake() (bool, error) {
	p.state = stateHandshaking

	if p.sess == nil {
		p.sess = p.r.NewSession(p)
		p.st.C.TLSHandshakes.Add(1)
		p.hsStart = time.Now()
	}

	t0 := time.Now()

	switch p.sess.drive() {
	case hsDone:
		p.recordLatency(t0)
		p.dbg("has completed TLS handshake")
		p.st.F.FirstTLS.Store(true)
		p.st.C.TLSHandshakes.Add(-1)
		p.st.C.TLSConns.Add(1)
		p.st.C.TotTLSHandshakes.Add(1)
		p.disconnect()
		p.st.C.TCPConns.Add(-1)
		p.r.QueueReconnect(p)
		return true, nil
	case hsWantRead, hsWantWrite:
		return false, p.addToPoll()
	default:
		if !p.st.F.FirstTLS.Load() {
			return false, fmt.Errorf("cannot establish even one TLS connection: %w", p.sess.err)
		}
		p.dbg("failed TLS handshake")
		p.st.C.TLSHandshakes.Add(-1)
		p.st.C.Errors.Add(1)
		p.disconnect()
		p.st.C.TCPConns.Add(-1)
		p.r.QueueReconnect(p)
		return false, nil
	}
}

func (p *Peer) recordLatency(driveStart time.Time) {
	switch p.cfg.LatencyMode {
	case LatencyFirstDrive:
		// Only the completing drive is measured; the waits between
		// drives contribute to throughput, not to latency.
		p.ring.Update(uint64(time.Since(driveStart).Microseconds()))
	case LatencyFull:
		p.ring.Update(uint64(time.Since(p.hsStart).Microseconds()))
	}
}

// disconnect releases the session and socket and resets the peer to
// CONNECT. A no-op on a peer already there.
func (p *Peer) disconnect() {
	if p.sess != nil {
		p.sess.close()
		p.sess = nil
	}
	if p.fd >= 0 {
		// Removal from the poller is best effort during teardown.
		if err := p.delFromPoll(); err != nil {
			log.Errorf("disconnect: %v", err)
		}
		conn.Close(p.fd)
		p.fd = -1
	}
	p.state = stateConnect
}

func (p *Peer) addToPoll() error {
	if p.polled {
		return nil
	}
	if err := p.r.Register(p); err != nil {
		return err
	}
	p.polled = true
	return nil
}

func (p *Peer) delFromPoll() error {
	if !p.polled {
		return nil
	}
	p.polled = false
	return p.r.Unregister(p)
}

func (p *Peer) dbg(msg string) {
	if p.cfg.Debug {
		log.Debugf("peer %d %s", p.id, msg)
	}
}
