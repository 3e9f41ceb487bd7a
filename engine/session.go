package engine

import (
	"crypto/tls"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/muhtutorials/tlsburst/conn"
)

// hsResult is the outcome of one drive of the handshake routine.
type hsResult int

const (
	hsWantRead hsResult = iota
	hsWantWrite
	hsDone
	hsFatal
)

// session drives one non-blocking TLS client handshake over a raw fd.
//
// crypto/tls runs a handshake as straight-line code, so it cannot be
// re-entered after its transport reports "would block". The session
// therefore runs the handshake on its own goroutine and turns EAGAIN
// from the socket into a parked goroutine plus a want-read/want-write
// result for the caller. Exactly one of the worker and the handshake
// goroutine runs at any moment: drive returns only once the handshake
// goroutine has parked or finished, so all peer state transitions stay
// single-threaded.
type session struct {
	tconn *tls.Conn
	fd    int
	ep    conn.Endpoint

	status  chan hsResult
	resume  chan struct{}
	exited  chan struct{}
	started bool
	done    bool
	err     error
}

func newSession(fd int, ep conn.Endpoint, cfg *tls.Config) *session {
	s := &session{
		fd:     fd,
		ep:     ep,
		status: make(chan hsResult, 1),
		resume: make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.tconn = tls.Client(&rawConn{s: s}, cfg)
	return s
}

// drive advances the handshake until it completes, fails or blocks on
// socket readiness.
func (s *session) drive() hsResult {
	if !s.started {
		s.started = true
		go s.run()
	} else {
		s.resume <- struct{}{}
	}
	r := <-s.status
	if r == hsDone || r == hsFatal {
		s.done = true
	}
	return r
}

func (s *session) run() {
	defer close(s.exited)
	if err := s.tconn.Handshake(); err != nil {
		s.err = err
		s.status <- hsFatal
		return
	}
	s.status <- hsDone
}

// park publishes the wanted readiness and blocks until the next drive.
// Returns false when the session is being closed instead.
func (s *session) park(want hsResult) bool {
	s.status <- want
	_, ok := <-s.resume
	return ok
}

// close releases a still-parked handshake goroutine and waits for it
// to exit, so the fd can be closed and reused safely afterward. It
// does not touch the fd itself; the peer owns that. Idempotent.
func (s *session) close() {
	if !s.started || s.done {
		return
	}
	close(s.resume)
	for {
		select {
		case <-s.exited:
			s.done = true
			return
		case <-s.status:
			// Discard in-flight results so the handshake goroutine
			// can run to completion.
		}
	}
}


// rawConn adapts the peer's non-blocking socket to the net.Conn the
// TLS library wants. EAGAIN parks the handshake goroutine instead of
// surfacing an error.
type rawConn struct {
	s *session
}

func (c *rawConn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.s.fd, p)
		switch err {
		case nil:
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		case unix.EINTR:
		case unix.EAGAIN:
			if !c.s.park(hsWantRead) {
				return 0, net.ErrClosed
			}
		default:
			return 0, os.NewSyscallError("read", err)
		}
	}
}

func (c *rawConn) Write(p []byte) (int, error) {
	var total int
	for total < len(p) {
		n, err := unix.Write(c.s.fd, p[total:])
		if n > 0 {
			total += n
		}
		switch err {
		case nil:
		case unix.EINTR:
		case unix.EAGAIN:
			if !c.s.park(hsWantWrite) {
				return total, net.ErrClosed
			}
		default:
			return total, os.NewSyscallError("write", err)
		}
	}
	return total, nil
}

func (c *rawConn) Close() error { return nil }

func (c *rawConn) LocalAddr() net.Addr { return &net.TCPAddr{} }

func (c *rawConn) RemoteAddr() net.Addr {
	return net.TCPAddrFromAddrPort(c.s.ep.AddrPort)
}

// Deadlines are never set: the reactor's bounded wait is the only
// timeout in the system.
func (c *rawConn) SetDeadline(time.Time) error      { return nil }
func (c *rawConn) SetReadDeadline(time.Time) error  { return nil }
func (c *rawConn) SetWriteDeadline(time.Time) error { return nil }
