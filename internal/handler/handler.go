// Package handler implements the handler state machine of spec.md
// §4.1: the four states request/head/body/chunk, the method/header/
// version-dependent branches (OPTIONS fast path, CONNECT rejection,
// Max-Forwards decrement, Host resolution, Content-Length framing,
// chunked relay), and the forwarding bridge of spec.md §4.4 that
// hands a parsed request to an origin worker and relays its reply
// back to the UA.
//
// Per spec.md §9's design note on PipelineQueue, this implementation
// takes the documented escape hatch: it processes one outstanding
// request fully (parse, forward, await reply, emit) before re-arming
// the tokenizer for a further pipelined request, rather than
// overlapping reply transmission with a second request's parsing. See
// DESIGN.md's "Open Question resolved" entry for the full reasoning.
package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/cyfdecyf/leakybuf"

	"github.com/ligzy/http-proxy/internal/headers"
	"github.com/ligzy/http-proxy/internal/origin"
	"github.com/ligzy/http-proxy/internal/reqline"
	"github.com/ligzy/http-proxy/internal/response"
	"github.com/ligzy/http-proxy/internal/serverconn"
	"github.com/ligzy/http-proxy/internal/tokenizer"
)

// State is one of the four states spec.md §4.1 names.
type State int

const (
	StateRequest State = iota
	StateHead
	StateBody
	StateChunk
)

// DefaultMaxHeaderBytes is the recommended cap from spec.md §5.
const DefaultMaxHeaderBytes = 64 * 1024

// optionsAllow is the Allow header value spec.md §4.1.1 specifies for
// both the asterisk-form and the Max-Forwards: 0 OPTIONS responses.
const optionsAllow = "OPTIONS, GET, HEAD, POST, PUT, DELETE, TRACE"

// pipelineEntry is the hook spec.md §3's PipelineQueue describes:
// pushed on forward, popped once its reply has been fully emitted.
// Never more than one entry is outstanding in this implementation
// (see the package doc comment), so it functions as a single-slot
// assertion rather than a real FIFO of overlapped requests.
type pipelineEntry struct {
	method string
}

// Handler drives one UA connection end to end: spec.md §3's
// HandlerState.
type Handler struct {
	conn       *serverconn.Conn
	banner     string
	dispatcher origin.Dispatcher
	maxHeader  int

	tok   *tokenizer.Tokenizer
	state State

	// per-request accumulation
	method         string
	form           reqline.Form
	scheme         string
	host           string
	port           int
	path           string
	versionMajor   int
	versionMinor   int
	statusLatched  int
	hdrs           *headers.Headers
	expectedLength int
	bodyFragments  [][]byte

	pipeline []pipelineEntry
}

// New constructs a Handler for one freshly accepted socket, per
// spec.md §3's lifecycle ("created when the acceptor hands it a
// connected socket and a server banner string").
func New(nc net.Conn, banner string, dispatcher origin.Dispatcher, pool *leakybuf.LeakyBuf, maxHeaderBytes int) *Handler {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	return &Handler{
		conn:       serverconn.New(nc, pool),
		banner:     banner,
		dispatcher: dispatcher,
		maxHeader:  maxHeaderBytes,
		tok:        tokenizer.New(maxHeaderBytes),
		state:      StateRequest,
	}
}

// Run drives the connection until it closes or a fatal error occurs.
// It loops for further requests when the prior response was
// keep-alive (spec.md §4.1's "loop to request if HTTP/1.1, else
// close").
func (h *Handler) Run() {
	defer h.conn.Close()
	for {
		h.resetRequestState()
		keepGoing, err := h.serveOneRequest()
		if err != nil {
			return // framing/socket error: terminate, no response synthesized
		}
		if !keepGoing {
			return
		}
	}
}

func (h *Handler) resetRequestState() {
	h.tok.Reset()
	h.method = ""
	h.scheme = ""
	h.host = ""
	h.port = 0
	h.path = ""
	h.statusLatched = 0
	h.hdrs = headers.New(h.maxHeader)
	h.expectedLength = 0
	h.bodyFragments = nil
}

// serveOneRequest parses one request, handles or forwards it, emits
// its reply, and reports whether the connection should continue
// (keep-alive) or close.
func (h *Handler) serveOneRequest() (keepGoing bool, err error) {
	needBody, keepGoing, err := h.readHead()
	if err != nil {
		return false, err
	}
	if needBody {
		return h.readBodyAndForward()
	}
	return keepGoing, nil
}

// readHead reads request-line and header tokens until end-of-headers.
// If the request carries a body, it returns needBody=true and leaves
// emitting a reply to readBodyAndForward; otherwise it has already
// emitted a reply itself (locally or via forwarding) and returns the
// keep-alive decision directly.
func (h *Handler) readHead() (needBody, keepGoing bool, err error) {
	h.state = StateRequest
	for {
		line, err := h.conn.NextLine()
		if err != nil {
			return false, false, err
		}
		tok, err := h.tok.FeedLine(line)
		if err != nil {
			if errors.Is(err, tokenizer.ErrTooLarge) {
				// spec.md §8 invariant 7: never enters body; emit 400
				// and stop absorbing headers immediately.
				keepGoing, err := h.emitLocal(response.NewError(400))
				return false, keepGoing, err
			}
			return false, false, err
		}
		switch tok.Kind {
		case tokenizer.KindRequestLine:
			h.onRequestLine(tok.Line)
		case tokenizer.KindHeader:
			h.onHeader(tok.Name, tok.Value)
		case tokenizer.KindEndOfHeaders:
			if h.expectedLength > 0 && h.statusLatched == 0 &&
				h.method != "CONNECT" && !(h.method == "OPTIONS" && h.path == "*") {
				h.state = StateBody
				return true, false, nil
			}
			keepGoing, err := h.onEndOfHeaders()
			return false, keepGoing, err
		}
	}
}

func (h *Handler) onRequestLine(l reqline.Line) {
	h.method = l.Method
	h.form = l.Form
	h.versionMajor = l.VersionMajor
	h.versionMinor = l.VersionMinor
	switch l.Form {
	case reqline.FormAbsoluteURI:
		h.scheme = l.Scheme
		h.host = l.Host
		h.port = l.Port
		h.path = l.Path
	case reqline.FormAbsPath:
		h.path = l.Path
	case reqline.FormAuthority:
		// host/port recorded; final disposition deferred to
		// end-of-headers (CONNECT -> 501 per spec.md §4.1).
		h.host = l.Host
		h.port = l.Port
	case reqline.FormAsterisk:
		h.path = "*"
	}
	h.state = StateHead
}

func (h *Handler) onHeader(name, value string) {
	lineBytes := len(name) + len(value) + 4 // "Name: Value\r\n"
	switch {
	case strings.EqualFold(name, "Content-Length"):
		if value != "0" {
			n, ok := parseContentLength(value)
			if ok {
				h.expectedLength = n
			}
		}
		_ = h.hdrs.Add(name, value, lineBytes)
	case strings.EqualFold(name, "Host"):
		if h.host == "" {
			host, port, ok := splitHostHeader(value)
			if !ok {
				h.statusLatched = 400
			} else {
				h.host = host
				h.port = port
			}
		}
		_ = h.hdrs.Add(name, value, lineBytes)
	default:
		_ = h.hdrs.Add(name, value, lineBytes)
	}
}

// onEndOfHeaders is reached only for requests whose body is not read
// (readHead routes Content-Length>0 requests to readBodyAndForward
// instead, unless a status is latched, the method is CONNECT, or the
// request is OPTIONS *).
func (h *Handler) onEndOfHeaders() (bool, error) {
	switch {
	case h.statusLatched != 0:
		return h.emitLocal(response.NewError(h.statusLatched))
	case h.method == "OPTIONS":
		return h.doOptions()
	case h.method == "CONNECT":
		return h.emitLocal(response.NewError(501))
	default:
		return h.forward(nil)
	}
}

func (h *Handler) readBodyAndForward() (bool, error) {
	h.state = StateBody
	for h.expectedLength > 0 {
		buf, err := h.conn.ReadRaw(h.expectedLength)
		if len(buf) > 0 {
			h.bodyFragments = append(h.bodyFragments, buf)
			h.expectedLength -= len(buf)
		}
		if err != nil {
			// framing error: body shorter than Content-Length
			// followed by close; no response synthesized.
			return false, err
		}
	}
	var body []byte
	if len(h.bodyFragments) == 1 {
		body = h.bodyFragments[0]
	} else if len(h.bodyFragments) > 1 {
		body = bytes.Join(h.bodyFragments, nil)
	}
	keepGoing, err := h.forward(body)
	return keepGoing, err
}

// doOptions implements spec.md §4.1.1.
func (h *Handler) doOptions() (bool, error) {
	if h.path == "*" {
		return h.emitLocal(optionsReply())
	}

	mf, ok := h.hdrs.Get("Max-Forwards")
	if !ok {
		return h.forward(nil)
	}
	n, err := parseSignedInt(mf)
	if err != nil {
		// non-integer: treated as absent.
		return h.forward(nil)
	}
	switch {
	case n == 0:
		return h.emitLocal(optionsReply())
	case n > 0:
		h.hdrs.Replace("Max-Forwards", fmt.Sprintf("%d", n-1))
		return h.forward(nil)
	default:
		// negative: treated as absent.
		return h.forward(nil)
	}
}

func optionsReply() *response.Reply {
	h := headers.New(0)
	_ = h.Add("Allow", optionsAllow, 0)
	return &response.Reply{StatusCode: 204, Headers: h}
}

// emitLocal writes a locally-synthesized reply (never chunked) and
// applies the keep-alive decision.
func (h *Handler) emitLocal(r *response.Reply) (bool, error) {
	if r.Headers == nil {
		r.Headers = headers.New(0)
	}
	if _, ok := r.Headers.Get("Server"); !ok {
		r.Headers.Replace("Server", h.banner)
	}
	if err := response.WriteReply(h.conn, h.versionMajorOr1(), h.versionMinorOrDefault(), r); err != nil {
		return false, err
	}
	return h.versionMinor == 1 && h.versionMajor == 1, nil
}

func (h *Handler) versionMajorOr1() int {
	if h.versionMajor == 0 {
		return 1
	}
	return h.versionMajor
}

func (h *Handler) versionMinorOrDefault() int {
	return h.versionMinor
}

// forward implements spec.md §4.4: look up the closest origin, submit
// the accumulated request, adopt a lifetime link to the returned
// worker, enqueue on the pipeline queue, and await the worker's reply
// (and chunks/trailer if the reply is chunked), relaying each to the
// UA in order. Per-request accumulation is cleared by Run before the
// next request is read.
func (h *Handler) forward(body []byte) (bool, error) {
	req := &origin.Request{
		Method:       h.method,
		Path:         h.forwardTarget(),
		Host:         h.host,
		Port:         h.port,
		VersionMajor: h.versionMajorOr1(),
		VersionMinor: h.versionMinorOrDefault(),
		Headers:      h.hdrs,
		Body:         body,
	}

	handle, err := h.dispatcher.GetClosestOrigin()
	if err != nil {
		return false, fmt.Errorf("handler: get closest origin: %w", err)
	}
	worker, err := handle.Submit(req)
	if err != nil {
		return false, fmt.Errorf("handler: submit to origin: %w", err)
	}

	h.pipeline = append(h.pipeline, pipelineEntry{method: h.method})
	defer h.popPipeline()

	return h.relayReply(worker)
}

func (h *Handler) forwardTarget() string {
	if h.path != "" {
		return h.path
	}
	return "/"
}

func (h *Handler) popPipeline() {
	if len(h.pipeline) > 0 {
		h.pipeline = h.pipeline[1:]
	}
}

// relayReply waits for the origin worker's reply event (and, for a
// chunked reply, its subsequent chunk/trailer events), writing each
// to the UA as it arrives. An origin crash before the reply is
// synthesized into a 500 per spec.md §4.4; a crash after a chunked
// reply has begun ends the connection instead (see relayChunked).
func (h *Handler) relayReply(w origin.Worker) (bool, error) {
	select {
	case ev, ok := <-w.Events():
		if !ok {
			return h.emitLocal(response.NewError(500))
		}
		if ev.Kind != origin.EventReply {
			return false, fmt.Errorf("handler: origin protocol violation: first event kind %v", ev.Kind)
		}
		return h.relayFromReply(w, ev.Reply)
	case <-w.Done():
		return h.emitLocal(response.NewError(500))
	}
}

func (h *Handler) relayFromReply(w origin.Worker, reply *response.Reply) (bool, error) {
	if !reply.IsChunked() {
		return h.emitOriginReply(reply)
	}
	return h.relayChunked(w, reply)
}

func (h *Handler) emitOriginReply(reply *response.Reply) (bool, error) {
	major, minor := h.versionMajorOr1(), h.versionMinorOrDefault()
	if err := response.WriteReply(h.conn, major, minor, reply); err != nil {
		return false, err
	}
	return major == 1 && minor == 1, nil
}

// relayChunked implements the chunk state of spec.md §4.1: the
// status line + headers are emitted once, on the first chunk; each
// further chunk is emitted as it arrives; the trailer event ends the
// reply with the terminating "0\r\n" + trailer + CRLF.
func (h *Handler) relayChunked(w origin.Worker, reply *response.Reply) (bool, error) {
	h.state = StateChunk
	major, minor := h.versionMajorOr1(), h.versionMinorOrDefault()

	headerWritten := false
	writeHeaderOnce := func() error {
		if headerWritten {
			return nil
		}
		headerWritten = true
		if err := response.WriteStatusLine(h.conn, major, minor, reply.StatusCode, reply.StatusText); err != nil {
			return err
		}
		return response.WriteHeaders(h.conn, reply.Headers)
	}

	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return false, fmt.Errorf("handler: origin closed mid-chunk without trailer")
			}
			switch ev.Kind {
			case origin.EventChunk:
				if err := writeHeaderOnce(); err != nil {
					return false, err
				}
				if err := response.WriteChunk(h.conn, ev.Chunk); err != nil {
					return false, err
				}
			case origin.EventTrailer:
				if err := writeHeaderOnce(); err != nil {
					return false, err
				}
				if err := response.WriteLastChunk(h.conn, ev.Trailer); err != nil {
					return false, err
				}
				return major == 1 && minor == 1, nil
			default:
				return false, fmt.Errorf("handler: origin protocol violation mid-chunk: kind %v", ev.Kind)
			}
		case <-w.Done():
			// worker crashed mid-chunk: the socket is already
			// compromised if headers were written, so this is a
			// terminal close rather than a synthesized 500 (spec.md
			// §7: "Socket write failure -> terminal, no retry").
			return false, fmt.Errorf("handler: origin terminated mid-chunk")
		}
	}
}

func parseContentLength(v string) (int, bool) {
	n := 0
	if v == "" {
		return 0, false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func parseSignedInt(v string) (int, error) {
	neg := false
	i := 0
	if len(v) > 0 && (v[0] == '+' || v[0] == '-') {
		neg = v[0] == '-'
		i = 1
	}
	if i >= len(v) {
		return 0, fmt.Errorf("handler: empty integer")
	}
	n := 0
	for ; i < len(v); i++ {
		c := v[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("handler: not an integer: %q", v)
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

func splitHostHeader(value string) (host string, port int, ok bool) {
	idx := -1
	for i := len(value) - 1; i >= 0; i-- {
		if value[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return value, 80, true
	}
	host = value[:idx]
	portStr := value[idx+1:]
	if portStr == "" {
		return host, 80, true
	}
	n, ok := parseContentLength(portStr) // reuse: unsigned decimal parse
	if !ok {
		return "", 0, false
	}
	return host, n, true
}
