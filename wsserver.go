package webcpp

import (
	"net/http"
	"runtime/debug"

	"github.com/pkg/errors"
)

// WSHandler handles complete WebSocket messages. req is the handshake
// request that opened the connection.
type WSHandler interface {
	HandleWS(req *Request, ws *WSResponse, payload []byte) bool
}

// WSHandlerFunc adapts a function to the WSHandler interface.
type WSHandlerFunc func(req *Request, ws *WSResponse, payload []byte) bool

// HandleWS calls f(req, ws, payload).
func (f WSHandlerFunc) HandleWS(req *Request, ws *WSResponse, payload []byte) bool {
	return f(req, ws, payload)
}

type wsRoute struct {
	route   *Route
	handler WSHandler
}

// HandleWS registers handler for WebSocket connections whose handshake
// path matches template.
func (srv *Server) HandleWS(template string, handler WSHandler) error {
	route, err := CompileRoute(http.MethodGet, template)
	if err != nil {
		return err
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.wsRoutes = append(srv.wsRoutes, &wsRoute{route: route, handler: handler})
	return nil
}

// HandleWSFunc registers a WebSocket handler function, see HandleWS.
func (srv *Server) HandleWSFunc(template string, f func(req *Request, ws *WSResponse, payload []byte) bool) error {
	return srv.HandleWS(template, WSHandlerFunc(f))
}

func (srv *Server) findWSRoute(req *Request) *wsRoute {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for _, wr := range srv.wsRoutes {
		if params, ok := wr.route.MatchPath(req.URL.Path); ok {
			req.Params = params
			return wr
		}
	}
	return nil
}

// upgrade answers a handshake and switches the session to frame mode.
func (srv *Server) upgrade(s *Session, req *Request, resp *Response, wr *wsRoute) {
	key, err := checkHandshakeRequest(req)
	if err != nil {
		resp.Error(http.StatusBadRequest, errors.Cause(err).Error())
		resp.CloseAfter()
		srv.Metrics.request(req.Method, resp.StatusCode)
		srv.writeResponse(s, resp)
		srv.Transport.Disconnect(s.ID)
		return
	}
	setHandshakeResponse(resp, key)
	srv.Metrics.request(req.Method, resp.StatusCode)
	if err = srv.writeResponse(s, resp); err != nil {
		srv.Transport.Disconnect(s.ID)
		return
	}
	srv.keepAlive.disarm(s.ID)
	srv.sessions.upgrade(s.ID, wr, req, srv.maxWSMessageSize())
}

type wsControlHandler func(srv *Server, s *Session, f Frame)

var wsControlHandlers = map[Opcode]wsControlHandler{
	OpPing:  wsControlPingHandler,
	OpPong:  wsControlPongHandler,
	OpClose: wsControlCloseHandler,
}

func wsControlPingHandler(srv *Server, s *Session, f Frame) {
	if err := srv.writeFrame(s, OpPong, f.Payload); err != nil {
		srv.Transport.Disconnect(s.ID)
	}
}

func wsControlPongHandler(srv *Server, s *Session, f Frame) {
	s.Set("webcpp.pong", f.Payload)
}

func wsControlCloseHandler(srv *Server, s *Session, f Frame) {
	code, _ := ParseCloseMessage(f.Payload)
	srv.writeFrame(s, OpClose, FormatCloseMessage(code, ""))
	srv.Transport.Disconnect(s.ID)
}

func (srv *Server) dispatchFrame(s *Session, f Frame) {
	if f.Opcode.IsControl() {
		wsControlHandlers[f.Opcode](srv, s, f)
		return
	}
	srv.Metrics.wsMessage(f.Opcode)
	ws := &WSResponse{MessageType: f.Opcode, srv: srv, session: s}
	srv.invokeWS(s.ws.route.handler, s.ws.req, ws, f.Payload)
}

func (srv *Server) invokeWS(h WSHandler, req *Request, ws *WSResponse, payload []byte) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			srv.Metrics.handlerPanic()
			srv.logf("webcpp: panic in websocket handler for %v: %v\n%s", req, r, debug.Stack())
			handled = false
		}
	}()
	return h.HandleWS(req, ws, payload)
}

// dispatchWSError closes a connection whose peer broke the protocol.
func (srv *Server) dispatchWSError(s *Session, err error) {
	code := CloseProtocolError
	if errors.Cause(err) == ErrMessageTooBig {
		code = CloseMessageTooBig
	}
	srv.writeFrame(s, OpClose, FormatCloseMessage(code, ""))
	srv.Transport.Disconnect(s.ID)
}

func (srv *Server) writeFrame(s *Session, op Opcode, payload []byte) error {
	return srv.writeChunked(s, AppendFrame(nil, true, op, payload, nil))
}

// WSResponse sends frames to the peer of an upgraded session.
type WSResponse struct {
	MessageType Opcode // opcode of the message being handled
	srv         *Server
	session     *Session
}

// Session returns the upgraded session.
func (ws *WSResponse) Session() *Session {
	return ws.session
}

// Send sends payload as one unfragmented message.
func (ws *WSResponse) Send(op Opcode, payload []byte) error {
	return ws.srv.writeFrame(ws.session, op, payload)
}

// SendText sends a text message.
func (ws *WSResponse) SendText(text string) error {
	return ws.Send(OpText, []byte(text))
}

// SendBinary sends a binary message.
func (ws *WSResponse) SendBinary(p []byte) error {
	return ws.Send(OpBinary, p)
}

// Ping sends a ping control frame.
func (ws *WSResponse) Ping(payload []byte) error {
	if len(payload) > MaxWSControlPayload {
		return errors.WithStack(ErrBadControl)
	}
	return ws.Send(OpPing, payload)
}

// Close sends a close frame and closes the connection.
func (ws *WSResponse) Close(code int, reason string) error {
	err := ws.Send(OpClose, FormatCloseMessage(code, reason))
	ws.srv.Transport.Disconnect(ws.session.ID)
	return err
}

// Broadcast sends payload to every session upgraded through the same
// route, including this one. It returns the number of sessions written to.
func (ws *WSResponse) Broadcast(op Opcode, payload []byte) (n int) {
	if ws.session.ws == nil {
		return
	}
	frame := AppendFrame(nil, true, op, payload, nil)
	for _, s := range ws.srv.sessions.wsSessions(ws.session.ws.route) {
		if ws.srv.writeChunked(s, frame) == nil {
			n++
		}
	}
	return
}
