package webcpp

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Handshake_AcceptKey(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
	assert.True(t, VerifyAccept("dGhlIHNhbXBsZSBub25jZQ==", "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="))
	assert.False(t, VerifyAccept("dGhlIHNhbXBsZSBub25jZQ==", ""))
	assert.Len(t, NewSecKey(), 24)
	assert.NotEqual(t, NewSecKey(), NewSecKey())
}

func parseTestRequest(t *testing.T, raw string) *Request {
	req := &Request{}
	done, err := req.Parse([]byte(raw))
	require.NoError(t, err)
	require.True(t, done)
	return req
}

func Test_Handshake_Request(t *testing.T) {
	req := parseTestRequest(t, "GET /chat HTTP/1.1\r\nHost: server.example.com\r\n"+
		"Upgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n")
	key, err := checkHandshakeRequest(req)
	require.NoError(t, err)

	resp := NewResponse()
	setHandshakeResponse(resp, key)
	b := string(resp.Build())
	assert.Contains(t, b, "HTTP/1.1 101 Switching Protocols\r\n")
	assert.Contains(t, b, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	assert.NotContains(t, b, "Content-Length")
}

func Test_Handshake_BadRequests(t *testing.T) {
	for _, raw := range []string{
		"GET / HTTP/1.1\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n",
		"GET / HTTP/1.1\r\nUpgrade: websocket\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n",
		"GET / HTTP/1.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 8\r\n\r\n",
		"GET / HTTP/1.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: c2hvcnQ=\r\nSec-WebSocket-Version: 13\r\n\r\n",
		"POST / HTTP/1.1\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n",
	} {
		_, err := checkHandshakeRequest(parseTestRequest(t, raw))
		assert.Equal(t, ErrHandshake, errors.Cause(err), raw)
	}
}

func Test_Handshake_ClientSide(t *testing.T) {
	u, err := ParseURL("ws://example.com:9000/chat?room=1", true)
	require.NoError(t, err)
	req, key := newHandshakeRequest(u)
	assert.Equal(t, "/chat?room=1", req.Target)
	assert.Equal(t, "example.com:9000", req.Header.Get("Host"))

	in := parseTestRequest(t, string(req.Build()))
	serverKey, err := checkHandshakeRequest(in)
	require.NoError(t, err)
	assert.Equal(t, key, serverKey)

	resp := NewResponse()
	setHandshakeResponse(resp, serverKey)
	assert.NoError(t, checkHandshakeResponse(resp, key))

	resp.Header.SetType(HeaderSecWebSocketAccept, "bogus")
	assert.Equal(t, ErrAcceptMismatch, errors.Cause(checkHandshakeResponse(resp, key)))
	resp.SetStatus(http.StatusOK)
	assert.Equal(t, ErrHandshake, errors.Cause(checkHandshakeResponse(resp, key)))
}
