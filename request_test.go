package webcpp

import (
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRawRequest = "POST /a/b?x=1 HTTP/1.1\r\nHost: example.com\r\nContent-Length: 3\r\nContent-Type: text/plain\r\n\r\nabc"

func Test_Request_Parse(t *testing.T) {
	req := &Request{}
	done, err := req.Parse([]byte(testRawRequest))
	require.NoError(t, err)
	require.True(t, done)
	assert.True(t, req.Complete())
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/a/b?x=1", req.Target)
	assert.Equal(t, "/a/b", req.Path())
	assert.Equal(t, "1", req.Query("x"))
	assert.Equal(t, protoHTTP11, req.Proto)
	assert.Equal(t, "abc", string(req.Body))
	assert.Equal(t, len(testRawRequest), req.Size())
	assert.Equal(t, "text/plain", req.ContentType())
	assert.True(t, req.KeepAlive())
}

func Test_Request_ParseIncremental(t *testing.T) {
	raw := []byte(testRawRequest)
	req := &Request{}
	for i := 0; i < len(raw); i++ {
		done, err := req.Parse(raw[:i])
		require.NoError(t, err, "at %d", i)
		require.False(t, done, "at %d", i)
	}
	done, err := req.Parse(raw)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "abc", string(req.Body))
	assert.Equal(t, len(raw), req.Size())
}

func Test_Request_ParseTrailingBytes(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\n\r\nGET /next HTTP/1.1\r\n\r\n")
	req := &Request{}
	done, err := req.Parse(raw)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, "/", req.Target)
	assert.Equal(t, 18, req.Size())
	assert.Empty(t, req.Body)
}

func Test_Request_ParseErrors(t *testing.T) {
	for raw, cause := range map[string]error{
		"FOO / HTTP/1.1\r\n\r\n":                                        ErrUnknownMethod,
		"GET / HTTP/2.0\r\n\r\n":                                        ErrBadVersion,
		"GET /\r\n\r\n":                                                 ErrBadStartLine,
		"GET  / HTTP/1.1\r\n\r\n":                                       ErrBadStartLine,
		"GET / HTTP/1.1\r\nbroken\r\n\r\n":                              ErrBadHeader,
		"POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n":         ErrChunkedUnsupported,
		"POST / HTTP/1.1\r\nContent-Length: 1000000000000\r\n\r\nabcd": ErrBodyTooLarge,
	} {
		req := &Request{}
		req.MaxBodySize = DefaultMaxBodySize
		done, err := req.Parse([]byte(raw))
		assert.False(t, done, raw)
		assert.Equal(t, cause, errors.Cause(err), raw)
		assert.Equal(t, err, req.LastError())
	}
}

func Test_Request_BodyTooLargeBeforeBody(t *testing.T) {
	req := &Request{}
	req.MaxBodySize = 10
	_, err := req.Parse([]byte("POST /upload HTTP/1.1\r\nContent-Length: 11\r\n\r\n"))
	assert.Equal(t, ErrBodyTooLarge, errors.Cause(err))
	assert.Equal(t, http.StatusRequestEntityTooLarge, errorStatus(err))
}

func Test_Request_HeaderTooLarge(t *testing.T) {
	req := &Request{}
	req.MaxHeaderSize = 32
	_, err := req.Parse([]byte("GET / HTTP/1.1\r\nX-Padding: 0123456789012345678901234567890123456789\r\n"))
	assert.Equal(t, ErrHeaderTooLarge, errors.Cause(err))
	req = &Request{}
	req.MaxHeaderSize = 8
	_, err = req.Parse([]byte("GET /a/very/long/path"))
	assert.Equal(t, ErrHeaderTooLarge, errors.Cause(err))
}

func Test_Request_KeepAlive(t *testing.T) {
	for raw, want := range map[string]bool{
		"GET / HTTP/1.1\r\n\r\n":                          true,
		"GET / HTTP/1.1\r\nConnection: close\r\n\r\n":     false,
		"GET / HTTP/1.0\r\n\r\n":                          false,
		"GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n": true,
	} {
		req := &Request{}
		done, err := req.Parse([]byte(raw))
		require.NoError(t, err)
		require.True(t, done)
		assert.Equal(t, want, req.KeepAlive(), raw)
	}
}

func Test_Request_AbsoluteTarget(t *testing.T) {
	req := &Request{}
	done, err := req.Parse([]byte("GET http://example.com:81/x HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, "example.com", req.URL.Host)
	assert.Equal(t, 81, req.URL.Port)
	assert.Equal(t, "/x", req.Path())
}

func Test_Request_BuildRoundTrip(t *testing.T) {
	out, err := NewRequest(http.MethodPost, "http://example.com:8080/x?a=1", []byte("hi"))
	require.NoError(t, err)
	b := out.Build()
	assert.Equal(t, "POST /x?a=1 HTTP/1.1\r\n"+
		"Host: example.com:8080\r\n"+
		"User-Agent: "+DefaultUserAgent+"\r\n"+
		"Content-Length: 2\r\n"+
		"Content-Type: application/octet-stream\r\n"+
		"\r\nhi", string(b))

	in := &Request{}
	done, err := in.Parse(b)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, out.Method, in.Method)
	assert.Equal(t, out.Target, in.Target)
	assert.Equal(t, out.Header.Fields, in.Header.Fields)
	assert.Equal(t, out.Body, in.Body)
	assert.Equal(t, b, in.AppendTo(nil))
}

func Test_Request_NewRequestErrors(t *testing.T) {
	_, err := NewRequest("BREW", "http://example.com/", nil)
	assert.Equal(t, ErrUnknownMethod, errors.Cause(err))
	_, err = NewRequest(http.MethodGet, "/relative", nil)
	assert.True(t, IsMalformed(err))
}

func Test_Request_Reset(t *testing.T) {
	req := &Request{}
	_, err := req.Parse([]byte(testRawRequest))
	require.NoError(t, err)
	req.Reset()
	assert.False(t, req.Complete())
	assert.Equal(t, "", req.Method)
	assert.Empty(t, req.Header.Fields)
	done, err := req.Parse([]byte("GET / HTTP/1.1\r\n\r\n"))
	assert.NoError(t, err)
	assert.True(t, done)
}

func Test_Request_WebSocketUpgrade(t *testing.T) {
	req := &Request{}
	_, err := req.Parse([]byte("GET /ws HTTP/1.1\r\nUpgrade: WebSocket\r\nConnection: keep-alive, Upgrade\r\n\r\n"))
	require.NoError(t, err)
	assert.True(t, req.IsWebSocketUpgrade())
}

func Test_Request_LongStartLine(t *testing.T) {
	req := &Request{}
	req.MaxHeaderSize = 1024
	raw := "GET /" + strings.Repeat("a", 1100) + " HTTP/1.1\r\n" + "X-Pad: " + strings.Repeat("b", 4000) + "\r\n"
	done, err := req.Parse([]byte(raw))
	assert.False(t, done)
	assert.Equal(t, ErrHeaderTooLarge, errors.Cause(err))

	req = &Request{}
	req.MaxHeaderSize = 24
	done, err = req.Parse([]byte("GET /0123456 HTTP/1.1\r\n\r\n"))
	assert.True(t, done)
	assert.NoError(t, err)
}

func Test_Request_UnaddressableBody(t *testing.T) {
	req := &Request{}
	done, err := req.Parse([]byte("POST / HTTP/1.1\r\nContent-Length: 9223372036854775807\r\n\r\nabc"))
	assert.False(t, done)
	assert.Equal(t, ErrBodyTooLarge, errors.Cause(err))
	assert.Equal(t, 0, req.Size())
}
