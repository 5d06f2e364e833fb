// Package tokenizer turns a line-at-a-time byte stream into the
// one-shot token sequence spec.md §4.2 specifies: a request line,
// then zero or more headers, then an end-of-headers sentinel. Each
// call to FeedLine yields exactly one token, matching the "one-shot
// readiness" discipline — the caller must re-arm (read another line)
// before the next token is available.
//
// This is deliberately a thin glue layer over internal/reqline and
// internal/headers rather than its own parser: the request-line and
// header-line grammars already live in those packages.
package tokenizer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ligzy/http-proxy/internal/headers"
	"github.com/ligzy/http-proxy/internal/reqline"
)

// ErrTooLarge is re-exported from headers for callers that only
// import tokenizer.
var ErrTooLarge = headers.ErrTooLarge

// Kind identifies which token FeedLine produced.
type Kind int

const (
	KindNone Kind = iota
	KindRequestLine
	KindHeader
	KindEndOfHeaders
)

// Token is the event emitted by one FeedLine call.
type Token struct {
	Kind  Kind
	Line  reqline.Line
	Name  string
	Value string
}

type stage int

const (
	stageRequestLine stage = iota
	stageHeaders
	stageDone
)

// Tokenizer holds the tiny bit of state needed to know which grammar
// the next line belongs to, plus the running header-byte count used
// to enforce the cap from spec.md §5.
type Tokenizer struct {
	stage          stage
	headerBytes    int
	maxHeaderBytes int
}

// New returns a Tokenizer ready to parse a request line first.
// maxHeaderBytes of 0 means unlimited.
func New(maxHeaderBytes int) *Tokenizer {
	return &Tokenizer{maxHeaderBytes: maxHeaderBytes}
}

// Reset rearms the tokenizer for a further pipelined/keep-alive
// request on the same connection.
func (t *Tokenizer) Reset() {
	t.stage = stageRequestLine
	t.headerBytes = 0
}

// FeedLine consumes one line (including its trailing CRLF or LF) and
// returns the token it produces.
func (t *Tokenizer) FeedLine(line []byte) (Token, error) {
	switch t.stage {
	case stageRequestLine:
		trimmed := trimEOL(line)
		rl, err := reqline.Parse(trimmed)
		if err != nil {
			return Token{}, err
		}
		t.stage = stageHeaders
		return Token{Kind: KindRequestLine, Line: *rl}, nil

	case stageHeaders:
		trimmed := trimEOL(line)
		if len(trimmed) == 0 {
			t.stage = stageDone
			return Token{Kind: KindEndOfHeaders}, nil
		}
		if t.maxHeaderBytes > 0 {
			t.headerBytes += len(line)
			if t.headerBytes > t.maxHeaderBytes {
				return Token{}, ErrTooLarge
			}
		}
		name, value, err := headers.ParseFieldLine(trimmed)
		if err != nil {
			return Token{}, err
		}
		return Token{Kind: KindHeader, Name: name, Value: value}, nil

	default:
		return Token{}, fmt.Errorf("tokenizer: FeedLine called after end-of-headers: %w", io.EOF)
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line
}
