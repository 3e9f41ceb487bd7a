// tlsburst measures the throughput and latency of TLS handshakes
// against a target endpoint. It opens TCP connections, performs a TLS
// handshake, tears the connection down and reports per-handshake
// latency and aggregate handshake rates. No application data is
// exchanged after the handshake.
package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/muhtutorials/tlsburst/conn"
	"github.com/muhtutorials/tlsburst/engine"
	"github.com/muhtutorials/tlsburst/metrics"
)

const (
	defaultAddr = "127.0.0.1"
	defaultPort = "443"
)

func main() {
	os.Exit(run())
}

func run() int {
	pflag.IntP("peers", "l", 1, "limit of parallel connections for each worker")
	pflag.IntP("threads", "t", 1, "number of worker threads")
	pflag.Uint64P("handshakes", "n", 0, "total number of handshakes to establish (0 = unbounded)")
	pflag.IntP("to", "T", 0, "duration of the test in seconds (0 = unbounded)")
	pflag.StringP("cipher", "c", "", "force cipher choice, or 'any' to disable ciphersuite restrictions")
	pflag.String("tls", "1.2", "TLS version for handshakes: '1.2', '1.3' or 'any' for both")
	pflag.Bool("use-tickets", false, "enable TLS session tickets")
	pflag.String("latency-mode", "first-drive", "latency sampling: 'first-drive' or 'full'")
	pflag.String("metrics-addr", "", "expose Prometheus metrics on this address (empty = off)")
	pflag.BoolP("debug", "d", false, "run in debug mode")
	pflag.Usage = usage
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)
	viper.SetEnvPrefix("TLSBURST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := buildConfig()
	if err != nil {
		log.Errorf("ERROR: %v", err)
		return 2
	}

	updateLimits(cfg)
	printSettings(cfg)
	log.WithFields(log.Fields{
		"run_id": uuid.NewString(),
		"target": cfg.Target.String(),
	}).Info("starting TLS handshake benchmark")

	sup, err := engine.NewSupervisor(cfg)
	if err != nil {
		log.Errorf("ERROR: %v", err)
		return 2
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		sup.Stop()
	}()

	if addr := viper.GetString("metrics-addr"); addr != "" {
		stop, err := metrics.Serve(addr, sup.Stats())
		if err != nil {
			log.Errorf("ERROR: can't serve metrics on %s: %v", addr, err)
			return 2
		}
		defer stop()
	}

	rep, err := sup.Run()
	if err != nil {
		log.Errorf("ERROR: %v", err)
		return 1
	}
	rep.Print(os.Stdout, os.Stderr)
	return 0
}

func buildConfig() (*engine.Config, error) {
	args := pflag.Args()
	var ep conn.Endpoint
	var err error
	switch len(args) {
	case 0:
		ep, err = conn.ParseEndpoint(defaultAddr, defaultPort)
	case 2:
		ep, err = conn.ParseEndpoint(args[0], args[1])
	default:
		return nil, fmt.Errorf("either 0 or 2 arguments are allowed: none for defaults or address and port")
	}
	if err != nil {
		return nil, err
	}

	vers, err := engine.ParseTLSVersion(viper.GetString("tls"))
	if err != nil {
		return nil, err
	}
	lmode, err := engine.ParseLatencyMode(viper.GetString("latency-mode"))
	if err != nil {
		return nil, err
	}

	cfg := &engine.Config{
		Target:          ep,
		PeersPerWorker:  viper.GetInt("peers"),
		Workers:         viper.GetInt("threads"),
		HandshakeBudget: viper.GetUint64("handshakes"),
		Duration:        time.Duration(viper.GetInt("to")) * time.Second,
		TLSVersion:      vers,
		UseTickets:      viper.GetBool("use-tickets"),
		LatencyMode:     lmode,
		Debug:           viper.GetBool("debug"),
	}
	if c := viper.GetString("cipher"); c == "any" {
		cfg.CipherAny = true
	} else {
		cfg.Cipher = c
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// updateLimits raises the open-file soft limit to cover all peer
// sockets plus each worker's poller and standard IO. When the limit
// can't be raised the peer count is shrunk to fit.
func updateLimits(cfg *engine.Config) {
	req := uint64(cfg.PeersPerWorker+4) * uint64(cfg.Workers)

	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		log.Warnf("can't read open file limit: %v", err)
		return
	}
	if lim.Cur > req {
		return
	}
	log.Infof("set open files limit to %d", req)
	lim.Cur = req
	if lim.Max < req {
		lim.Max = req
	}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		unix.Getrlimit(unix.RLIMIT_NOFILE, &lim)
		cfg.PeersPerWorker = int(lim.Cur)/cfg.Workers - 4
		if cfg.PeersPerWorker < 0 {
			cfg.PeersPerWorker = 0
		}
		log.Warnf("required %d open files ((peers + 4) * threads), but setrlimit(2) fails for this limit."+
			" Try to run as root or decrease the numbers. Continue with %d peers",
			req, cfg.PeersPerWorker)
		if cfg.PeersPerWorker == 0 {
			log.Fatal("cannot run with no peers")
		}
	}
}

func printSettings(cfg *engine.Config) {
	vers := "Any of 1.2 or 1.3"
	switch cfg.TLSVersion {
	case tls.VersionTLS12:
		vers = "1.2"
	case tls.VersionTLS13:
		vers = "1.3"
	}
	cipher := cfg.Cipher
	switch {
	case cfg.CipherAny:
		cipher = "any"
	case cipher == "":
		cipher = "library default"
	}
	fmt.Printf("Running TLS benchmark with following settings:\n"+
		"Host:        %s\n"+
		"TLS version: %s\n"+
		"Cipher:      %s\n"+
		"TLS tickets: %s\n"+
		"Duration:    %d\n\n",
		cfg.Target.String(), vers, cipher,
		onOff(cfg.UseTickets), int(cfg.Duration.Seconds()))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func usage() {
	fmt.Fprintf(os.Stderr, "\nUsage: %s [options] [<ip> <port>]\n\n%s\n%s:%s address is used by default.\n\n"+
		"To list available ciphers run command:\n$ nmap --script ssl-enum-ciphers -p <PORT> <IP>\n\n",
		os.Args[0], pflag.CommandLine.FlagUsages(), defaultAddr, defaultPort)
}
