// Package origin defines the dispatcher/worker contract spec.md §6
// names as an external collaborator ("Origin dispatcher", "Origin
// worker"), and provides one concrete implementation of it: a worker
// that dials the request's resolved host:port directly and relays the
// upstream's raw reply back as the reply/chunk/trailer event sequence
// spec.md §6 requires.
//
// "Closest origin" in this implementation means "the origin the
// request itself names" — there is no pooling or load-balancing
// across multiple candidate origins, since spec.md §1 places that
// logic out of scope and names the dispatcher only by its event
// contract.
package origin

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/ligzy/http-proxy/internal/headers"
	"github.com/ligzy/http-proxy/internal/response"
)

// Request is the (request, headers, body) triple the forwarding
// bridge hands to a Dispatcher/Worker pair (spec.md §4.4, §6).
type Request struct {
	Method       string
	Path         string // request-target to send upstream; "*" or abs_path form
	Host         string
	Port         int
	VersionMajor int
	VersionMinor int
	Headers      *headers.Headers
	Body         []byte
}

// EventKind identifies which event a Worker delivered.
type EventKind int

const (
	EventReply EventKind = iota
	EventChunk
	EventTrailer
)

// Event is one item in the event sequence spec.md §6 specifies:
// exactly one EventReply; if that Reply is chunked, zero or more
// EventChunk followed by exactly one EventTrailer.
type Event struct {
	Kind    EventKind
	Reply   *response.Reply
	Chunk   []byte
	Trailer *headers.Headers
}

// Worker delivers the event sequence for one submitted Request.
// Events is closed after the terminal event (EventReply for a
// non-chunked reply, EventTrailer for a chunked one). Done is closed
// if the worker terminates abnormally (crash) before delivering its
// terminal event; the handler's forwarding bridge selects on it to
// synthesize a 500 per spec.md §4.4.
type Worker interface {
	Events() <-chan Event
	Done() <-chan struct{}
}

// OriginHandle supports one request submission, per spec.md §6's
// "submit(request, headers, body) -> ok(worker_handle) | error".
type OriginHandle interface {
	Submit(req *Request) (Worker, error)
}

// Dispatcher exposes the single synchronous operation spec.md §6
// names: get_closest_origin() -> origin_handle | error.
type Dispatcher interface {
	GetClosestOrigin() (OriginHandle, error)
}

// DialDispatcher is the concrete Dispatcher described above: it
// always succeeds, handing back a handle that dials whatever host:port
// the submitted Request names. Grounded on Hasanexe-ggproxy's
// net.Dial-based forward path.
type DialDispatcher struct {
	// DialTimeout bounds the upstream net.Dial call. Zero means no
	// timeout.
	DialTimeout time.Duration
}

// GetClosestOrigin always succeeds for DialDispatcher; dispatch
// failure in this implementation can only come from Submit's dial.
func (d *DialDispatcher) GetClosestOrigin() (OriginHandle, error) {
	return &dialHandle{dialTimeout: d.DialTimeout}, nil
}

type dialHandle struct {
	dialTimeout time.Duration
}

func (h *dialHandle) Submit(req *Request) (Worker, error) {
	hostPort := net.JoinHostPort(req.Host, portString(req.Port))

	var conn net.Conn
	var err error
	if h.dialTimeout > 0 {
		conn, err = net.DialTimeout("tcp", hostPort, h.dialTimeout)
	} else {
		conn, err = net.Dial("tcp", hostPort)
	}
	if err != nil {
		return nil, fmt.Errorf("origin: dial %s: %w", hostPort, err)
	}

	w := &dialWorker{
		conn:   conn,
		events: make(chan Event, 4),
		done:   make(chan struct{}),
	}
	go w.run(req)
	return w, nil
}

func portString(port int) string {
	if port == 0 {
		port = 80
	}
	return fmt.Sprintf("%d", port)
}

// dialWorker is the concrete Worker: it writes the request to the
// dialed upstream connection, then parses the raw reply and relays it
// as the event sequence.
type dialWorker struct {
	conn   net.Conn
	events chan Event
	done   chan struct{}
}

func (w *dialWorker) Events() <-chan Event  { return w.events }
func (w *dialWorker) Done() <-chan struct{} { return w.done }

func (w *dialWorker) run(req *Request) {
	defer close(w.events)
	defer w.conn.Close()

	if err := w.writeRequest(req); err != nil {
		close(w.done)
		return
	}

	br := bufio.NewReader(w.conn)
	_, _, code, reason, err := response.ReadStatusLine(br)
	if err != nil {
		close(w.done)
		return
	}

	hdrs, err := response.ReadHeaders(br)
	if err != nil {
		close(w.done)
		return
	}

	chunked := false
	if te, ok := hdrs.Get("Transfer-Encoding"); ok && te == "chunked" {
		chunked = true
	}

	if !chunked {
		contentLength := 0
		if cl, ok := hdrs.Get("Content-Length"); ok {
			fmt.Sscanf(cl, "%d", &contentLength)
		}
		body, err := response.ReadBody(br, contentLength)
		if err != nil {
			close(w.done)
			return
		}
		w.events <- Event{Kind: EventReply, Reply: &response.Reply{
			StatusCode: code, StatusText: reason, Headers: hdrs, Body: body,
		}}
		return
	}

	w.events <- Event{Kind: EventReply, Reply: &response.Reply{
		StatusCode: code, StatusText: reason, Headers: hdrs, Body: nil,
	}}
	for {
		payload, last, err := response.ReadChunk(br)
		if err != nil {
			close(w.done)
			return
		}
		if last {
			trailer, err := response.ReadTrailer(br)
			if err != nil {
				close(w.done)
				return
			}
			w.events <- Event{Kind: EventTrailer, Trailer: trailer}
			return
		}
		w.events <- Event{Kind: EventChunk, Chunk: payload}
	}
}

func (w *dialWorker) writeRequest(req *Request) error {
	if _, err := fmt.Fprintf(w.conn, "%s %s HTTP/%d.%d\r\n", req.Method, req.Path, req.VersionMajor, req.VersionMinor); err != nil {
		return err
	}
	var headerErr error
	if req.Headers != nil {
		req.Headers.ForEach(func(name, value string) {
			if headerErr == nil {
				_, headerErr = fmt.Fprintf(w.conn, "%s: %s\r\n", name, value)
			}
		})
	}
	if headerErr != nil {
		return headerErr
	}
	if _, err := fmt.Fprint(w.conn, "\r\n"); err != nil {
		return err
	}
	if len(req.Body) > 0 {
		if _, err := w.conn.Write(req.Body); err != nil {
			return err
		}
	}
	return nil
}
