package conn

import (
	"fmt"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// Endpoint is the connect target: an IPv4 or IPv6 address with port.
// Immutable after startup.
type Endpoint struct {
	netip.AddrPort
}

// ParseEndpoint builds an Endpoint from an address literal and a port
// string. Names are not resolved here; callers hand over addresses
// that are already numeric.
func ParseEndpoint(addr, port string) (Endpoint, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("can't parse ip address from string %q: %w", addr, err)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("can't parse port from string %q: %w", port, err)
	}
	return Endpoint{AddrPort: netip.AddrPortFrom(ip.Unmap(), uint16(p))}, nil
}

// Family returns the socket address family of the endpoint.
func (e Endpoint) Family() int {
	if e.Addr().Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

// Sockaddr returns the endpoint in the form connect(2) wants.
func (e Endpoint) Sockaddr() unix.Sockaddr {
	if e.Addr().Is4() {
		return &unix.SockaddrInet4{
			Port: int(e.Port()),
			Addr: e.Addr().As4(),
		}
	}
	return &unix.SockaddrInet6{
		Port: int(e.Port()),
		Addr: e.Addr().As16(),
	}
}
