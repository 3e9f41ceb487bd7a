package engine

import (
	"crypto/tls"
	"os"

	"golang.org/x/sys/unix"
)

const (
	// maxEvents is the readiness batch size per wait.
	maxEvents = 128
	// waitTimeoutMs bounds a reactor wait; it also bounds how long a
	// worker can go without checking the stop flag.
	waitTimeoutMs = 5
)

// Reactor multiplexes readiness across all peers of one worker, owns
// the worker's view of the TLS configuration template and buffers
// peers awaiting reconnection after a completed cycle.
//
// The reactor never owns peers. epoll events carry the peer's slot id
// and the slots slice maps them back; the worker's peer list is the
// owning side.
type Reactor struct {
	epfd   int
	events [maxEvents]unix.EpollEvent
	nready int

	slots []*Peer

	reconnectQ []*Peer
	backlog    []*Peer

	template *tls.Config
}

// NewReactor builds the TLS template from the configuration and opens
// the readiness descriptor.
func NewReactor(cfg *Config) (*Reactor, error) {
	tmpl, err := cfg.TLSTemplate()
	if err != nil {
		return nil, err
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Reactor{epfd: epfd, template: tmpl}, nil
}

func (r *Reactor) Close() {
	if r.epfd >= 0 {
		unix.Close(r.epfd)
		r.epfd = -1
	}
	r.reconnectQ = nil
	r.backlog = nil
}

// Register adds the peer's socket to the readiness set for read, write
// and error events.
func (r *Reactor) Register(p *Peer) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLERR,
		Fd:     int32(p.id),
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, p.fd, &ev); err != nil {
		return os.NewSyscallError("can't add socket to poller", err)
	}
	for len(r.slots) <= p.id {
		r.slots = append(r.slots, nil)
	}
	r.slots[p.id] = p
	return nil
}

// Unregister removes the peer from the readiness set.
func (r *Reactor) Unregister(p *Peer) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, p.fd, nil); err != nil {
		return os.NewSyscallError("can't delete socket from poller", err)
	}
	return nil
}

// Wait blocks up to the wait timeout for readiness events. Interrupted
// waits are retried transparently.
func (r *Reactor) Wait() error {
	for {
		n, err := unix.EpollWait(r.epfd, r.events[:], waitTimeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("poller wait error", err)
		}
		r.nready = n
		return nil
	}
}

// NextReady returns the next peer whose socket reported readiness
// since the last Wait, or nil when the batch is drained. Order within
// a batch is unspecified.
func (r *Reactor) NextReady() *Peer {
	for r.nready > 0 {
		r.nready--
		if p := r.slots[r.events[r.nready].Fd]; p != nil {
			return p
		}
	}
	return nil
}

// QueueReconnect appends a peer that has just completed a cycle and
// wants a fresh connection.
func (r *Reactor) QueueReconnect(p *Peer) {
	r.reconnectQ = append(r.reconnectQ, p)
}

// RotateBacklog swaps the reconnect queue into the drain list, so
// reconnects queued while draining don't starve the event loop.
func (r *Reactor) RotateBacklog() {
	r.backlog, r.reconnectQ = r.reconnectQ, r.backlog
}

// NextBacklog pops one peer from the drain list, or nil when empty.
func (r *Reactor) NextBacklog() *Peer {
	if len(r.backlog) == 0 {
		return nil
	}
	p := r.backlog[0]
	r.backlog = r.backlog[1:]
	return p
}

// NewSession produces a fresh TLS session bound to the peer's socket,
// inheriting the configured version range, cipher selection and ticket
// policy.
func (r *Reactor) NewSession(p *Peer) *session {
	return newSession(p.fd, p.ep, r.template)
}
