// Package response implements the reply serializer of spec.md §4.3:
// status line, headers, and body encoding, plus chunked frame/trailer
// encoding and a default reason-phrase table.
package response

import (
	"fmt"
	"io"

	"github.com/ligzy/http-proxy/internal/headers"
)

// Reply is the Reply data model of spec.md §3. Whether the reply is
// streamed as chunks is decided by its headers (see IsChunked), not by
// Body: a chunked reply carries a nil Body, and a non-chunked reply
// carries its complete body buffer (nil when the body is empty).
type Reply struct {
	StatusCode int
	StatusText string // "" selects the default reason phrase
	Headers    *headers.Headers
	Body       []byte
}

// IsChunked reports whether this Reply declares
// Transfer-Encoding: chunked, the condition spec.md §4.1 uses to
// decide whether a reply event enters chunk mode.
func (r *Reply) IsChunked() bool {
	if r.Headers == nil {
		return false
	}
	v, ok := r.Headers.Get("Transfer-Encoding")
	return ok && v == "chunked"
}

// defaultReasons mirrors the handful of codes this core produces or
// is expected to relay (spec.md §6's terminal status codes, plus the
// common ones an origin reply carries).
var defaultReasons = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	400: "Bad Request",
	404: "Not Found",
	411: "Length Required",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
}

// DefaultReason resolves the reason phrase for code when the caller
// did not supply one, per spec.md §4.3 ("default reason when status
// string is absent").
func DefaultReason(code int) string {
	if r, ok := defaultReasons[code]; ok {
		return r
	}
	return "Unknown Status"
}

// NewError builds the "status response with given status, no headers,
// empty body" construction spec.md §4.3 describes for error
// responses; reason is resolved by DefaultReason.
func NewError(statusCode int) *Reply {
	return &Reply{StatusCode: statusCode, Headers: headers.New(0)}
}

// WriteStatusLine writes "HTTP/{maj}.{min} {code} {reason}\r\n".
func WriteStatusLine(w io.Writer, major, minor, code int, text string) error {
	if text == "" {
		text = DefaultReason(code)
	}
	_, err := fmt.Fprintf(w, "HTTP/%d.%d %d %s\r\n", major, minor, code, text)
	return err
}

// WriteHeaders writes each field as "Name: Value\r\n" in insertion
// order, followed by the blank-line separator.
func WriteHeaders(w io.Writer, h *headers.Headers) error {
	var err error
	if h != nil {
		h.ForEach(func(name, value string) {
			if err == nil {
				_, err = fmt.Fprintf(w, "%s: %s\r\n", name, value)
			}
		})
	}
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}

// WriteReply writes a complete non-chunked reply: status line,
// headers, and body verbatim. Callers of a chunked Reply must instead
// use WriteStatusLine+WriteHeaders once followed by WriteChunk calls
// and a final WriteLastChunk.
func WriteReply(w io.Writer, major, minor int, r *Reply) error {
	if err := WriteStatusLine(w, major, minor, r.StatusCode, r.StatusText); err != nil {
		return err
	}
	if err := WriteHeaders(w, r.Headers); err != nil {
		return err
	}
	if len(r.Body) > 0 {
		if _, err := w.Write(r.Body); err != nil {
			return err
		}
	}
	return nil
}

// WriteChunk writes one chunk frame: hex(len)\r\n + payload + \r\n.
// Hex digits are lowercase, no chunk extensions, matching spec.md
// §4.3.
func WriteChunk(w io.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "%x\r\n", len(payload)); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// WriteLastChunk writes the terminating "0\r\n", the trailer headers
// (if any), and the final CRLF.
func WriteLastChunk(w io.Writer, trailer *headers.Headers) error {
	if _, err := io.WriteString(w, "0\r\n"); err != nil {
		return err
	}
	if trailer != nil {
		var err error
		trailer.ForEach(func(name, value string) {
			if err == nil {
				_, err = fmt.Fprintf(w, "%s: %s\r\n", name, value)
			}
		})
		if err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
