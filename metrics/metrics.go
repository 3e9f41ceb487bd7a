// Package metrics exposes the live run counters over Prometheus when
// the --metrics-addr flag is set. The exposition is read-only; the
// stdout report stays the source of truth for the final aggregates.
package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muhtutorials/tlsburst/stats"
)

// Collector reads the atomic counter block on every scrape.
type Collector struct {
	st *stats.Stats

	handshakesTotal *prometheus.Desc
	tlsInProgress   *prometheus.Desc
	tcpInProgress   *prometheus.Desc
	tcpOpen         *prometheus.Desc
	errorsTotal     *prometheus.Desc
}

func NewCollector(st *stats.Stats) *Collector {
	return &Collector{
		st: st,
		handshakesTotal: prometheus.NewDesc(
			"tlsburst_tls_handshakes_total",
			"Total number of completed TLS handshakes", nil, nil),
		tlsInProgress: prometheus.NewDesc(
			"tlsburst_tls_handshakes_in_progress",
			"TLS handshakes currently in flight", nil, nil),
		tcpInProgress: prometheus.NewDesc(
			"tlsburst_tcp_handshakes_in_progress",
			"TCP connects currently in flight", nil, nil),
		tcpOpen: prometheus.NewDesc(
			"tlsburst_tcp_connections_open",
			"Established TCP connections currently held", nil, nil),
		errorsTotal: prometheus.NewDesc(
			"tlsburst_errors_total",
			"Transient TLS handshake failures", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.handshakesTotal
	ch <- c.tlsInProgress
	ch <- c.tcpInProgress
	ch <- c.tcpOpen
	ch <- c.errorsTotal
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.handshakesTotal, prometheus.CounterValue,
		float64(c.st.C.TotTLSHandshakes.Load()))
	ch <- prometheus.MustNewConstMetric(c.tlsInProgress, prometheus.GaugeValue,
		float64(c.st.C.TLSHandshakes.Load()))
	ch <- prometheus.MustNewConstMetric(c.tcpInProgress, prometheus.GaugeValue,
		float64(c.st.C.TCPHandshakes.Load()))
	ch <- prometheus.MustNewConstMetric(c.tcpOpen, prometheus.GaugeValue,
		float64(c.st.C.TCPConns.Load()))
	ch <- prometheus.MustNewConstMetric(c.errorsTotal, prometheus.CounterValue,
		float64(c.st.C.Errors.Load()))
}

// Serve starts the /metrics endpoint on addr. The returned closer
// stops the listener.
func Serve(addr string, st *stats.Stats) (func() error, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(st)); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	return srv.Close, nil
}
