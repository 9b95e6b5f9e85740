package webcpp

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"net/http"

	"github.com/pkg/errors"
)

const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey returns the Sec-WebSocket-Accept value for key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(wsGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// NewSecKey returns a random Sec-WebSocket-Key value.
func NewSecKey() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b[:])
}

// VerifyAccept returns true if accept is the correct answer to key.
func VerifyAccept(key, accept string) bool {
	return accept != "" && accept == AcceptKey(key)
}

// checkHandshakeRequest validates a client upgrade request and returns
// its Sec-WebSocket-Key.
func checkHandshakeRequest(req *Request) (string, error) {
	if req.Method != http.MethodGet {
		return "", errors.Wrapf(ErrHandshake, "method %s", req.Method)
	}
	if !req.Header.HasToken(HeaderUpgrade, "websocket") {
		return "", errors.Wrap(ErrHandshake, "missing Upgrade: websocket")
	}
	if !req.Header.HasToken(HeaderConnection, "upgrade") {
		return "", errors.Wrap(ErrHandshake, "missing Connection: Upgrade")
	}
	if v, _ := req.Header.GetType(HeaderSecWebSocketVersion); v != "13" {
		return "", errors.Wrapf(ErrHandshake, "unsupported version %q", v)
	}
	key, _ := req.Header.GetType(HeaderSecWebSocketKey)
	if b, err := base64.StdEncoding.DecodeString(key); err != nil || len(b) != 16 {
		return "", errors.Wrapf(ErrHandshake, "bad Sec-WebSocket-Key %q", key)
	}
	return key, nil
}

// setHandshakeResponse turns resp into the 101 answer for key.
func setHandshakeResponse(resp *Response, key string) {
	resp.SetStatus(http.StatusSwitchingProtocols)
	resp.Header.SetType(HeaderUpgrade, "websocket")
	resp.Header.SetType(HeaderConnection, "Upgrade")
	resp.Header.SetType(HeaderSecWebSocketAccept, AcceptKey(key))
}

// newHandshakeRequest returns the client upgrade request for u and the
// key it carries.
func newHandshakeRequest(u *URL) (*Request, string) {
	key := NewSecKey()
	req := &Request{
		Method: http.MethodGet,
		Proto:  protoHTTP11,
		URL:    *u,
		Target: u.RequestURI(),
	}
	req.Header.SetType(HeaderHost, u.HostHeader())
	req.Header.SetType(HeaderUpgrade, "websocket")
	req.Header.SetType(HeaderConnection, "Upgrade")
	req.Header.SetType(HeaderSecWebSocketKey, key)
	req.Header.SetType(HeaderSecWebSocketVersion, "13")
	return req, key
}

// checkHandshakeResponse validates the server answer to a handshake
// that sent key.
func checkHandshakeResponse(resp *Response, key string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return errors.Wrapf(ErrHandshake, "status %d", resp.StatusCode)
	}
	if !resp.Header.HasToken(HeaderUpgrade, "websocket") || !resp.Header.HasToken(HeaderConnection, "upgrade") {
		return errors.Wrap(ErrHandshake, "missing upgrade headers")
	}
	accept, _ := resp.Header.GetType(HeaderSecWebSocketAccept)
	if !VerifyAccept(key, accept) {
		return errors.Wrapf(ErrAcceptMismatch, "%q", accept)
	}
	return nil
}
