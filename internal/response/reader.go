package response

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ligzy/http-proxy/internal/headers"
)

// ReadStatusLine parses "HTTP/{maj}.{min} {code} {reason}" off br. It
// is used only by internal/origin's worker to read a raw reply off an
// upstream connection — the collaborator side, not the UA-facing
// streaming core, so a plain blocking bufio.Reader is appropriate
// here (spec.md's incremental-parse requirement binds the UA-facing
// tokenizer, not this collaborator).
func ReadStatusLine(br *bufio.Reader) (major, minor, code int, reason string, err error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return 0, 0, 0, "", err
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, 0, 0, "", fmt.Errorf("response: malformed status line %q", line)
	}
	verParts := strings.SplitN(parts[0], "/", 2)
	if len(verParts) != 2 {
		return 0, 0, 0, "", fmt.Errorf("response: malformed status line version %q", parts[0])
	}
	dotted := strings.SplitN(verParts[1], ".", 2)
	if len(dotted) != 2 {
		return 0, 0, 0, "", fmt.Errorf("response: malformed status line version %q", verParts[1])
	}
	major, err = strconv.Atoi(dotted[0])
	if err != nil {
		return 0, 0, 0, "", err
	}
	minor, err = strconv.Atoi(dotted[1])
	if err != nil {
		return 0, 0, 0, "", err
	}
	code, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, "", err
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return major, minor, code, reason, nil
}

// ReadHeaders reads field lines off br until the blank-line
// terminator, returning an unbounded Headers (the collaborator side
// trusts the upstream it dialed itself).
func ReadHeaders(br *bufio.Reader) (*headers.Headers, error) {
	h := headers.New(0)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			return h, nil
		}
		name, value, err := headers.ParseFieldLine([]byte(trimmed))
		if err != nil {
			return nil, err
		}
		if err := h.Add(name, value, 0); err != nil {
			return nil, err
		}
	}
}

// ReadBody reads exactly contentLength bytes of body.
func ReadBody(br *bufio.Reader, contentLength int) ([]byte, error) {
	if contentLength <= 0 {
		return nil, nil
	}
	buf := make([]byte, contentLength)
	if _, err := readFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := br.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadChunk reads one chunk-size line plus its payload and trailing
// CRLF. A zero-length chunk signals the end of the chunked body; the
// caller should then call ReadTrailer.
func ReadChunk(br *bufio.Reader) (payload []byte, last bool, err error) {
	sizeLine, err := br.ReadString('\n')
	if err != nil {
		return nil, false, err
	}
	sizeLine = strings.TrimRight(sizeLine, "\r\n")
	if idx := strings.IndexByte(sizeLine, ';'); idx >= 0 {
		sizeLine = sizeLine[:idx] // no chunk extensions supported; discard them
	}
	size, err := strconv.ParseInt(sizeLine, 16, 64)
	if err != nil {
		return nil, false, fmt.Errorf("response: malformed chunk size %q", sizeLine)
	}
	if size == 0 {
		return nil, true, nil
	}
	buf := make([]byte, size)
	if _, err := readFull(br, buf); err != nil {
		return nil, false, err
	}
	if _, err := readCRLF(br); err != nil {
		return nil, false, err
	}
	return buf, false, nil
}

// ReadTrailer reads trailer header fields up to the terminating blank
// line (called after ReadChunk reports last == true).
func ReadTrailer(br *bufio.Reader) (*headers.Headers, error) {
	return ReadHeaders(br)
}

func readCRLF(br *bufio.Reader) (int, error) {
	var buf [2]byte
	n, err := readFull(br, buf[:])
	if err != nil {
		return n, err
	}
	if !bytes.Equal(buf[:], []byte("\r\n")) {
		return n, fmt.Errorf("response: expected CRLF after chunk payload")
	}
	return n, nil
}
