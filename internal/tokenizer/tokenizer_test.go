package tokenizer

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, tok *Tokenizer, raw string) []Token {
	t.Helper()
	r := bufio.NewReader(strings.NewReader(raw))
	var toks []Token
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			tkn, terr := tok.FeedLine([]byte(line))
			require.NoError(t, terr)
			toks = append(toks, tkn)
			if tkn.Kind == KindEndOfHeaders {
				break
			}
		}
		if err != nil {
			break
		}
	}
	return toks
}

func TestTokenizerBasicRequest(t *testing.T) {
	raw := "GET /a HTTP/1.1\r\nHost: h\r\nAccept: */*\r\n\r\n"
	tok := New(0)
	toks := feedAll(t, tok, raw)

	require.Len(t, toks, 4)
	assert.Equal(t, KindRequestLine, toks[0].Kind)
	assert.Equal(t, "GET", toks[0].Line.Method)
	assert.Equal(t, KindHeader, toks[1].Kind)
	assert.Equal(t, "Host", toks[1].Name)
	assert.Equal(t, "h", toks[1].Value)
	assert.Equal(t, KindHeader, toks[2].Kind)
	assert.Equal(t, KindEndOfHeaders, toks[3].Kind)
}

func TestTokenizerHeaderCap(t *testing.T) {
	tok := New(20)
	_, err := tok.FeedLine([]byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)
	_, err = tok.FeedLine([]byte("X-Long: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\r\n"))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestTokenizerResetForKeepAlive(t *testing.T) {
	tok := New(0)
	feedAll(t, tok, "GET /a HTTP/1.1\r\nHost: h\r\n\r\n")
	tok.Reset()
	toks := feedAll(t, tok, "GET /b HTTP/1.1\r\n\r\n")
	require.Len(t, toks, 2)
	assert.Equal(t, "/b", toks[0].Line.Path)
}
