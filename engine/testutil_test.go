package engine

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/muhtutorials/tlsburst/conn"
)

// serverTLSConfig builds a server config with a self-signed ECDSA
// certificate, matching the tool's default ECDHE-ECDSA cipher.
func serverTLSConfig(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tlsburst-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		}},
	}
}

// newTLSServer runs a loopback server that accepts connections,
// performs the TLS handshake and closes. Returns the endpoint and a
// stop function.
func newTLSServer(t *testing.T, cfg *tls.Config) (conn.Endpoint, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				tc := tls.Server(c, cfg)
				tc.Handshake()
			}(c)
		}
	}()
	return endpointOf(t, ln.Addr()), func() { ln.Close() }
}

// newSilentServer accepts connections and never answers; handshakes
// against it stay in want-read forever.
func newSilentServer(t *testing.T) (conn.Endpoint, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				close(done)
				return
			}
			conns = append(conns, c)
		}
	}()
	return endpointOf(t, ln.Addr()), func() {
		ln.Close()
		<-done
		for _, c := range conns {
			c.Close()
		}
	}
}

// closedEndpoint returns an endpoint nothing listens on.
func closedEndpoint(t *testing.T) conn.Endpoint {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ep := endpointOf(t, ln.Addr())
	ln.Close()
	return ep
}

func endpointOf(t *testing.T, addr net.Addr) conn.Endpoint {
	t.Helper()

	tcp := addr.(*net.TCPAddr)
	ep, err := conn.ParseEndpoint(tcp.IP.String(), strconv.Itoa(tcp.Port))
	if err != nil {
		t.Fatalf("parse endpoint %v: %v", addr, err)
	}
	return ep
}

func testConfig(ep conn.Endpoint) *Config {
	return &Config{
		Target:         ep,
		PeersPerWorker: 1,
		Workers:        1,
		TLSVersion:     tls.VersionTLS12,
		LatencyMode:    LatencyFull,
	}
}
