// Command proxyd is the entrypoint binary that wires internal/server,
// internal/origin, and golog together behind a flag-parsed Config.
//
// Grounded on Hasanexe-ggproxy's main.go/config.go shape (a Config
// struct populated before the listener starts, an async log setup,
// an accept loop delegated to a package). No config-file format is
// implemented here — spec.md names no configuration persistence as
// part of the core, so flags are this binary's whole configuration
// surface rather than a hand-rolled file parser like the teacher's.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getlantern/golog"

	"github.com/ligzy/http-proxy/internal/origin"
	"github.com/ligzy/http-proxy/internal/server"
)

var log = golog.LoggerFor("proxyd")

// Config mirrors the flag surface of this binary, kept as a distinct
// type from server.Config so flag parsing and wiring stay separate
// concerns, the way Hasanexe-ggproxy.Config is constructed once and
// handed to the connection loop.
type Config struct {
	ListenAddr     string
	Banner         string
	MaxHeaderBytes int
	DialTimeout    time.Duration
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.ListenAddr, "listen", ":8080", "address to accept UA connections on")
	flag.StringVar(&cfg.Banner, "banner", "http-proxy/1.0", "Server header value on locally-synthesized replies")
	flag.IntVar(&cfg.MaxHeaderBytes, "max-header-bytes", 64*1024, "maximum header bytes accumulated per request (0 selects the 64KiB default)")
	flag.DurationVar(&cfg.DialTimeout, "dial-timeout", 10*time.Second, "timeout for dialing an origin (0 for none)")
	flag.Parse()
	return cfg
}

func main() {
	cfg := parseFlags()

	dispatcher := &origin.DialDispatcher{DialTimeout: cfg.DialTimeout}
	srv, err := server.Serve(server.Config{
		Addr:           cfg.ListenAddr,
		Banner:         cfg.Banner,
		Dispatcher:     dispatcher,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "proxyd: %v\n", err)
		os.Exit(1)
	}
	log.Debugf("proxyd: listening on %s", srv.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Debugf("proxyd: shutting down")
	srv.Close()
}
