package server

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligzy/http-proxy/internal/origin"
	"github.com/ligzy/http-proxy/internal/testorigin"
)

func TestServeOptionsAsterisk(t *testing.T) {
	s, err := Serve(Config{
		Addr:       "127.0.0.1:0",
		Banner:     "http-proxy-test/0",
		Dispatcher: &origin.DialDispatcher{},
	})
	require.NoError(t, err)
	defer s.Close()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("OPTIONS * HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "204")
}

func TestServeForwardsToOrigin(t *testing.T) {
	origSrv, err := testorigin.Listen("127.0.0.1:0", testorigin.NewStore("/r"))
	require.NoError(t, err)
	defer origSrv.Close()

	s, err := Serve(Config{
		Addr:       "127.0.0.1:0",
		Banner:     "http-proxy-test/0",
		Dispatcher: &origin.DialDispatcher{},
	})
	require.NoError(t, err)
	defer s.Close()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	host, port, err := net.SplitHostPort(origSrv.Addr().String())
	require.NoError(t, err)

	req := "PUT /r HTTP/1.1\r\nHost: " + host + ":" + port + "\r\nContent-Length: 5\r\n\r\nhello"
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)

	status, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "201")
}

func TestServeCloseStopsAccepting(t *testing.T) {
	s, err := Serve(Config{Addr: "127.0.0.1:0", Banner: "x", Dispatcher: &origin.DialDispatcher{}})
	require.NoError(t, err)
	addr := s.Addr().String()
	require.NoError(t, s.Close())

	_, err = net.Dial("tcp", addr)
	assert.Error(t, err)
}
