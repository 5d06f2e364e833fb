package reqline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAbsPath(t *testing.T) {
	l, err := Parse([]byte("GET /x HTTP/1.1"))
	require.NoError(t, err)
	assert.Equal(t, "GET", l.Method)
	assert.Equal(t, FormAbsPath, l.Form)
	assert.Equal(t, "/x", l.Path)
	assert.Equal(t, 1, l.VersionMajor)
	assert.Equal(t, 1, l.VersionMinor)
}

func TestParseAsterisk(t *testing.T) {
	l, err := Parse([]byte("OPTIONS * HTTP/1.1"))
	require.NoError(t, err)
	assert.Equal(t, FormAsterisk, l.Form)
	assert.Equal(t, "*", l.Path)
}

func TestParseAbsoluteURI(t *testing.T) {
	l, err := Parse([]byte("GET http://example.com/a HTTP/1.1"))
	require.NoError(t, err)
	assert.Equal(t, FormAbsoluteURI, l.Form)
	assert.Equal(t, "example.com", l.Host)
	assert.Equal(t, 80, l.Port)
	assert.Equal(t, "/a", l.Path)
	assert.Equal(t, "http", l.Scheme)
}

func TestParseAbsoluteURIExplicitPort(t *testing.T) {
	l, err := Parse([]byte("GET http://example.com:8080/a HTTP/1.0"))
	require.NoError(t, err)
	assert.Equal(t, 8080, l.Port)
	assert.Equal(t, 1, l.VersionMajor)
	assert.Equal(t, 0, l.VersionMinor)
}

func TestParseAuthorityForm(t *testing.T) {
	l, err := Parse([]byte("CONNECT example.com:443 HTTP/1.1"))
	require.NoError(t, err)
	assert.Equal(t, FormAuthority, l.Form)
	assert.Equal(t, "example.com", l.Host)
	assert.Equal(t, 443, l.Port)
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"GET /x",
		"GET /x SOUP/1.1",
		"GET /x HTTP/2.0",
		"  /x HTTP/1.1",
	}
	for _, c := range cases {
		_, err := Parse([]byte(c))
		require.Error(t, err, c)
	}
}
