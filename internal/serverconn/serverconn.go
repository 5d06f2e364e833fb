// Package serverconn implements the socket activation control of
// spec.md §4.2 and §9: a UA connection's socket switches between
// HTTP-line mode (one token per read, the tokenizer's one-shot
// readiness discipline) and raw body mode (reads up to a packet size
// equal to the remaining expected body length). Encapsulating the
// mode switch here — rather than having the handler poke socket
// options directly — keeps the state machine in internal/handler
// pure, per spec.md §9's design note.
package serverconn

import (
	"net"

	cybufio "github.com/cyfdecyf/bufio"
	"github.com/cyfdecyf/leakybuf"
)

// readerBufSize is sized well above the recommended header byte cap
// (spec.md §5: 64KiB) so a long header line cannot exhaust the
// buffered reader's internal buffer before the tokenizer's own cap
// check gets to reject it with a clean 400.
const readerBufSize = 96 * 1024

// Conn wraps one accepted UA socket, offering the two read modes
// spec.md §4.2 describes. It owns the socket for its whole lifetime
// (spec.md §5's resource model) and releases its scratch buffer back
// to Pool on Close.
type Conn struct {
	nc      net.Conn
	br      *cybufio.Reader
	pool    *leakybuf.LeakyBuf
	scratch []byte
}

// New wraps nc. pool supplies the bounded scratch buffer raw-mode
// reads are read into, the same per-connection-acquire/
// release-on-teardown pattern lifenjoiner-cow uses for its
// serverConn/clientConn buffers.
func New(nc net.Conn, pool *leakybuf.LeakyBuf) *Conn {
	return &Conn{
		nc:      nc,
		br:      cybufio.NewReaderSize(nc, readerBufSize),
		pool:    pool,
		scratch: pool.Get(),
	}
}

// NextLine reads one line (through and including its trailing '\n')
// in HTTP-line mode. The caller must re-arm by calling NextLine again
// for the next token — this is the one-shot readiness contract.
func (c *Conn) NextLine() ([]byte, error) {
	return c.br.ReadSlice('\n')
}

// ReadRaw performs one raw-mode read of at most max bytes, the
// "packet size equal to the remaining expected body length" spec.md
// §4.2 describes. It may return fewer than max bytes — the caller
// (internal/handler's body state) is responsible for looping per
// spec.md §4.1's body-bytes transition.
func (c *Conn) ReadRaw(max int) ([]byte, error) {
	b := c.scratch
	if max < len(b) {
		b = b[:max]
	}
	n, err := c.br.Read(b)
	if n > 0 {
		out := make([]byte, n)
		copy(out, b[:n])
		return out, nil
	}
	return nil, err
}

// Write writes a reply or chunk frame to the socket.
func (c *Conn) Write(p []byte) (int, error) {
	return c.nc.Write(p)
}

// RemoteAddr exposes the peer address for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Close releases the scratch buffer and closes the underlying socket.
// Safe to call more than once.
func (c *Conn) Close() error {
	if c.scratch != nil {
		c.pool.Put(c.scratch)
		c.scratch = nil
	}
	return c.nc.Close()
}
