// Package server implements spec.md §2's outer control-flow line:
// "socket -> tokenizer -> handler SM -> ... -> socket -> (loop...)".
// Serve listens on a TCP address and spawns one internal/handler.Handler
// per accepted connection.
//
// Grounded on the teacher's internal/server.Server (Serve/runServer/
// runConnection/Close), generalized to build a handler.Handler instead
// of invoking a single user Handler func, and to log accept/connection
// lifecycle via golog instead of silently discarding errors.
package server

import (
	"net"

	"github.com/cyfdecyf/leakybuf"
	"github.com/getlantern/golog"

	"github.com/ligzy/http-proxy/internal/handler"
	"github.com/ligzy/http-proxy/internal/origin"
)

var log = golog.LoggerFor("proxy.server")

// Config bundles everything Serve needs to construct a Handler for
// each accepted connection.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// Banner is the Server header value attached to locally-synthesized
	// replies (spec.md §3's construction input).
	Banner string
	// Dispatcher resolves each forwarded request to an origin worker
	// (spec.md §6).
	Dispatcher origin.Dispatcher
	// MaxHeaderBytes caps header accumulation per request (spec.md
	// §5, recommended 64KiB). Zero selects handler.DefaultMaxHeaderBytes.
	MaxHeaderBytes int
	// ScratchBufSize is the size of each connection's raw-mode scratch
	// buffer, drawn from a shared leakybuf.LeakyBuf pool.
	ScratchBufSize int
	// PoolCapacity bounds how many scratch buffers the pool retains
	// for reuse across connections.
	PoolCapacity int
}

// Server accepts connections on one listener and spawns a Handler per
// connection until Close is called.
type Server struct {
	cfg    Config
	ln     net.Listener
	pool   *leakybuf.LeakyBuf
	closed bool
}

// Serve starts listening on cfg.Addr and begins accepting in a
// background goroutine, mirroring the teacher's Serve(port, handler)
// constructor shape.
func Serve(cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = handler.DefaultMaxHeaderBytes
	}
	bufSize := cfg.ScratchBufSize
	if bufSize <= 0 {
		bufSize = 96 * 1024
	}
	poolCap := cfg.PoolCapacity
	if poolCap <= 0 {
		poolCap = 64
	}
	s := &Server{
		cfg:  cfg,
		ln:   ln,
		pool: leakybuf.NewLeakyBuf(poolCap, bufSize),
	}
	log.Debugf("listening on %s", ln.Addr())
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listener's bound address, useful when Addr was
// ":0" (ephemeral port, e.g. in tests).
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if s.closed {
			return
		}
		if err != nil {
			log.Errorf("accept: %v", err)
			return
		}
		go s.runConnection(conn)
	}
}

func (s *Server) runConnection(conn net.Conn) {
	log.Debugf("accepted %s", conn.RemoteAddr())
	h := handler.New(conn, s.cfg.Banner, s.cfg.Dispatcher, s.pool, s.cfg.MaxHeaderBytes)
	h.Run()
	log.Debugf("closed %s", conn.RemoteAddr())
}

// Close stops accepting further connections. Already-running handlers
// are left to finish their own connection lifecycle.
func (s *Server) Close() error {
	s.closed = true
	return s.ln.Close()
}
