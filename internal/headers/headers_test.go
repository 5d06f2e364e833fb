package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldLine(t *testing.T) {
	name, value, err := ParseFieldLine([]byte("Host: localhost:42069"))
	require.NoError(t, err)
	assert.Equal(t, "Host", name)
	assert.Equal(t, "localhost:42069", value)

	_, _, err = ParseFieldLine([]byte("Host : localhost:42069"))
	require.Error(t, err)

	_, _, err = ParseFieldLine([]byte("Hést: localhost:42069"))
	require.Error(t, err)

	_, _, err = ParseFieldLine([]byte("NoColonHere"))
	require.Error(t, err)
}

func TestHeadersDuplicatesPreserveOrder(t *testing.T) {
	h := New(0)
	for _, v := range []string{"lane-loves-go", "prime-loves-zig", "tj-loves-ocaml"} {
		require.NoError(t, h.Add("Set-Person", v, 0))
	}

	var got []string
	h.ForEach(func(n, v string) { got = append(got, n+"="+v) })
	assert.Equal(t, []string{
		"Set-Person=lane-loves-go",
		"Set-Person=prime-loves-zig",
		"Set-Person=tj-loves-ocaml",
	}, got)

	first, ok := h.Get("set-person")
	require.True(t, ok)
	assert.Equal(t, "lane-loves-go", first)
}

func TestHeadersReplacePreservesPosition(t *testing.T) {
	h := New(0)
	require.NoError(t, h.Add("Host", "h", 0))
	require.NoError(t, h.Add("Max-Forwards", "3", 0))
	require.NoError(t, h.Add("User-Agent", "curl", 0))

	h.Replace("Max-Forwards", "2")

	var names []string
	h.ForEach(func(n, v string) { names = append(names, n) })
	assert.Equal(t, []string{"Host", "Max-Forwards", "User-Agent"}, names)

	v, ok := h.Get("Max-Forwards")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestHeadersByteCap(t *testing.T) {
	h := New(10)
	require.NoError(t, h.Add("A", "12345", 10))
	err := h.Add("B", "1", 5)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestHeadersDelete(t *testing.T) {
	h := New(0)
	require.NoError(t, h.Add("X", "1", 0))
	require.NoError(t, h.Add("Y", "2", 0))
	require.NoError(t, h.Add("X", "3", 0))
	h.Delete("x")
	assert.Equal(t, 1, h.Len())
	v, ok := h.Get("Y")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}
