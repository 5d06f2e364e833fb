package serverconn

import (
	"net"
	"testing"

	"github.com/cyfdecyf/leakybuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLineAndReadRaw(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	pool := leakybuf.NewLeakyBuf(4, 4096)
	conn := New(server, pool)
	defer conn.Close()

	go func() {
		_, _ = client.Write([]byte("GET / HTTP/1.1\r\n"))
		_, _ = client.Write([]byte("hello"))
	}()

	line, err := conn.NextLine()
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1\r\n", string(line))

	body, err := conn.ReadRaw(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestReadRawPartial(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	pool := leakybuf.NewLeakyBuf(4, 4096)
	conn := New(server, pool)
	defer conn.Close()

	go func() {
		_, _ = client.Write([]byte("ab"))
	}()

	body, err := conn.ReadRaw(5)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(body))
}
