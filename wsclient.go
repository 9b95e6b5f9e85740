package webcpp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// WSClientConn is the client end of a WebSocket connection. Every
// outbound frame is masked. Reads must come from a single goroutine;
// writes may come from any.
type WSClientConn struct {
	rwc       net.Conn
	url       URL
	wmu       sync.Mutex
	buf       []byte // unparsed inbound bytes
	msgOp     Opcode
	msg       []byte
	maxSize   int
	closeSent bool
	StatsCollector
}

// DialWebSocket performs the client handshake with rawurl, a ws or wss
// URL, and returns the open connection. The server's
// Sec-WebSocket-Accept is verified before the connection is returned.
func (c *Client) DialWebSocket(ctx context.Context, rawurl string) (*WSClientConn, error) {
	u, err := ParseURL(rawurl, true)
	if err != nil {
		return nil, err
	}
	rwc, err := c.dial(ctx, u)
	if err != nil {
		return nil, err
	}
	req, key := newHandshakeRequest(u)
	cc := &ClientConn{client: c, rwc: rwc, url: *u}
	if err = cc.write(req.Build()); err != nil {
		rwc.Close()
		return nil, err
	}
	resp := &Response{}
	resp.MaxBodySize = c.maxBodySize()
	resp.MaxHeaderSize = c.maxHeaderSize()
	if err = cc.readResponse(ctx, resp); err != nil {
		rwc.Close()
		return nil, err
	}
	if err = checkHandshakeResponse(resp, key); err != nil {
		rwc.Close()
		return nil, err
	}
	return &WSClientConn{
		rwc:            rwc,
		url:            *u,
		buf:            cc.buf,
		maxSize:        DefaultMaxWSMessageSize,
		StatsCollector: c.StatsCollector,
	}, nil
}

// DialWebSocket dials rawurl using a Client with default settings.
func DialWebSocket(ctx context.Context, rawurl string) (*WSClientConn, error) {
	return NewClient().DialWebSocket(ctx, rawurl)
}

func (ws *WSClientConn) String() string {
	return fmt.Sprintf("[WSClientConn %v]", ws.url)
}

// WriteMessage sends payload as one masked frame.
func (ws *WSClientConn) WriteMessage(op Opcode, payload []byte) error {
	key := NewMaskKey()
	return ws.writeFrame(AppendFrame(nil, true, op, payload, &key))
}

func (ws *WSClientConn) writeFrame(frame []byte) error {
	ws.wmu.Lock()
	defer ws.wmu.Unlock()
	n, err := ws.rwc.Write(frame)
	if ws.StatsCollector != nil && n > 0 {
		ws.StatsCollector.AddBytesWritten(int64(n))
	}
	return errors.WithStack(err)
}

// WriteText sends a text message.
func (ws *WSClientConn) WriteText(text string) error {
	return ws.WriteMessage(OpText, []byte(text))
}

// Ping sends a ping frame.
func (ws *WSClientConn) Ping(payload []byte) error {
	if len(payload) > MaxWSControlPayload {
		return errors.WithStack(ErrBadControl)
	}
	return ws.WriteMessage(OpPing, payload)
}

// ReadMessage returns the next complete data message. Pings are
// answered and pongs skipped. A close frame from the server is echoed
// and ErrConnClosed is returned.
func (ws *WSClientConn) ReadMessage() (Opcode, []byte, error) {
	chunk := make([]byte, DefaultReadBufferSize)
	for {
		for {
			f, n, err := ParseFrame(ws.buf)
			if err != nil {
				ws.rwc.Close()
				return 0, nil, err
			}
			if n == 0 {
				break
			}
			ws.buf = ws.buf[:copy(ws.buf, ws.buf[n:])]
			if op, msg, done, err := ws.handleFrame(f); done || err != nil {
				return op, msg, err
			}
		}
		n, err := ws.rwc.Read(chunk)
		if n > 0 {
			if ws.StatsCollector != nil {
				ws.StatsCollector.AddBytesRead(int64(n))
			}
			ws.buf = append(ws.buf, chunk[:n]...)
		}
		if err != nil && n == 0 {
			return 0, nil, errors.Wrap(ErrConnClosed, err.Error())
		}
	}
}

func (ws *WSClientConn) handleFrame(f Frame) (op Opcode, msg []byte, done bool, err error) {
	switch f.Opcode {
	case OpPing:
		err = ws.WriteMessage(OpPong, f.Payload)
		return
	case OpPong:
		return
	case OpClose:
		ws.wmu.Lock()
		sent := ws.closeSent
		ws.closeSent = true
		ws.wmu.Unlock()
		if !sent {
			code, _ := ParseCloseMessage(f.Payload)
			ws.WriteMessage(OpClose, FormatCloseMessage(code, ""))
		}
		ws.rwc.Close()
		return OpClose, f.Payload, true, errors.WithStack(ErrConnClosed)
	case OpContinuation:
		if ws.msgOp == OpContinuation {
			return 0, nil, true, errors.Wrap(ErrBadOpcode, "continuation without message")
		}
	default:
		if ws.msgOp != OpContinuation {
			return 0, nil, true, errors.Wrapf(ErrBadOpcode, "%s inside fragmented message", f.Opcode)
		}
		ws.msgOp = f.Opcode
	}
	if ws.maxSize > 0 && len(ws.msg)+len(f.Payload) > ws.maxSize {
		return 0, nil, true, errors.WithStack(ErrMessageTooBig)
	}
	ws.msg = append(ws.msg, f.Payload...)
	if f.Fin {
		op, msg, done = ws.msgOp, ws.msg, true
		ws.msgOp, ws.msg = OpContinuation, nil
	}
	return
}

// Close sends a close frame and closes the connection after waiting up
// to timeout for the server to close its end.
func (ws *WSClientConn) Close(code int, timeout time.Duration) error {
	ws.wmu.Lock()
	sent := ws.closeSent
	ws.closeSent = true
	ws.wmu.Unlock()
	if !sent {
		ws.WriteMessage(OpClose, FormatCloseMessage(code, ""))
		if timeout > 0 {
			ws.rwc.SetReadDeadline(time.Now().Add(timeout))
			var b [64]byte
			for {
				if _, err := ws.rwc.Read(b[:]); err != nil {
					break
				}
			}
		}
	}
	return ws.rwc.Close()
}
