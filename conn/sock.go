// Package conn provides the raw socket operations the handshake engine
// runs on: non-blocking TCP sockets, connect completion harvesting and
// immediate teardown.
package conn

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Socket creates a non-blocking TCP socket for the given address family.
func Socket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	return fd, nil
}

// StartConnect issues a non-blocking connect toward e. A zero errno
// means the connect completed synchronously, which happens on loopback.
// EINPROGRESS and EAGAIN mean the TCP handshake is still in flight and
// the socket should be polled for writability.
func StartConnect(fd int, e Endpoint) unix.Errno {
	err := unix.Connect(fd, e.Sockaddr())
	if err == nil {
		return 0
	}
	// A non-blocking connect interrupted by a signal proceeds
	// asynchronously, same as EINPROGRESS.
	if err == unix.EINTR {
		return unix.EINPROGRESS
	}
	var errno unix.Errno
	errors.As(err, &errno)
	return errno
}

// SockErr reads the pending error off the socket (SO_ERROR). Writable
// readiness on a connecting socket means the connect finished one way
// or the other; this tells which.
func SockErr(fd int) (unix.Errno, error) {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, os.NewSyscallError("getsockopt", err)
	}
	return unix.Errno(v), nil
}

// Close tears the socket down immediately. SO_LINGER with a zero
// timeout sends RST instead of FIN, so the socket never enters
// TIME-WAIT and the ephemeral port is free for the next connect.
func Close(fd int) {
	unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
	unix.Close(fd)
}

// RetryAfterError reports whether a syscall failed only transiently
// and should be reissued.
func RetryAfterError(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}
