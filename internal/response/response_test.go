package response

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligzy/http-proxy/internal/headers"
)

func TestWriteReplyRoundTrip(t *testing.T) {
	h := headers.New(0)
	require.NoError(t, h.Add("Content-Type", "text/plain", 0))
	require.NoError(t, h.Add("Content-Length", "5", 0))

	r := &Reply{StatusCode: 200, Headers: h, Body: []byte("hello")}

	var buf bytes.Buffer
	require.NoError(t, WriteReply(&buf, 1, 1, r))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Content-Type: text/plain\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nhello"))
}

func TestWriteErrorDefaultReason(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStatusLine(&buf, 1, 1, 400, ""))
	assert.Equal(t, "HTTP/1.1 400 Bad Request\r\n", buf.String())
}

func TestChunkedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStatusLine(&buf, 1, 1, 200, ""))
	h := headers.New(0)
	require.NoError(t, h.Add("Transfer-Encoding", "chunked", 0))
	require.NoError(t, WriteHeaders(&buf, h))
	require.NoError(t, WriteChunk(&buf, []byte("ab")))
	require.NoError(t, WriteChunk(&buf, []byte("cd")))
	trailer := headers.New(0)
	require.NoError(t, trailer.Add("X-Done", "1", 0))
	require.NoError(t, WriteLastChunk(&buf, trailer))

	expected := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"2\r\nab\r\n2\r\ncd\r\n0\r\nX-Done: 1\r\n\r\n"
	assert.Equal(t, expected, buf.String())

	br := bufio.NewReader(strings.NewReader(buf.String()))
	major, minor, code, _, err := ReadStatusLine(br)
	require.NoError(t, err)
	assert.Equal(t, 1, major)
	assert.Equal(t, 1, minor)
	assert.Equal(t, 200, code)

	hdrs, err := ReadHeaders(br)
	require.NoError(t, err)
	v, ok := hdrs.Get("Transfer-Encoding")
	require.True(t, ok)
	assert.Equal(t, "chunked", v)

	var got bytes.Buffer
	for {
		payload, last, err := ReadChunk(br)
		require.NoError(t, err)
		if last {
			break
		}
		got.Write(payload)
	}
	assert.Equal(t, "abcd", got.String())

	tr, err := ReadTrailer(br)
	require.NoError(t, err)
	v, ok = tr.Get("X-Done")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}
