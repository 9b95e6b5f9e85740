// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/pkg/errors"
)

// dispatchLoop drains the event queue until ctx is done. It is the only
// goroutine that runs handlers.
func (srv *Server) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-srv.sessions.wake:
		}
		for {
			ev, ok := srv.sessions.pop()
			if !ok {
				break
			}
			srv.dispatch(ev)
		}
	}
}

func (srv *Server) dispatch(ev dispatchEvent) {
	switch ev.kind {
	case eventRequest:
		srv.dispatchRequest(ev.session, ev.req)
	case eventParseError:
		srv.dispatchParseError(ev.session, ev.err)
	case eventWSFrame:
		srv.dispatchFrame(ev.session, ev.frame)
	case eventWSError:
		srv.dispatchWSError(ev.session, ev.err)
	}
}

// invoke runs h, treating a panic as "not handled".
func (srv *Server) invoke(h Handler, req *Request, resp *Response) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			srv.Metrics.handlerPanic()
			srv.logf("webcpp: panic in handler for %v: %v\n%s", req, r, debug.Stack())
			head := resp.HeadRequest
			resp.Reset()
			resp.HeadRequest = head
			handled = false
		}
	}()
	return h.Handle(req, resp)
}

// route runs the PreRoute hook, the routes and the PostRoute hook,
// returning true if any of them handled the request.
func (srv *Server) route(req *Request, resp *Response) (handled bool) {
	if srv.PreRoute != nil {
		handled = srv.invoke(srv.PreRoute, req, resp)
	}
	if !handled {
		for _, re := range srv.getRoutes() {
			if params, ok := re.route.Match(req.Method, req.URL.Path); ok {
				req.Params = params
				if srv.invoke(re.handler, req, resp) {
					handled = true
					break
				}
			}
		}
	}
	if srv.PostRoute != nil && srv.invoke(srv.PostRoute, req, resp) {
		handled = true
	}
	return
}

func (srv *Server) dispatchRequest(s *Session, req *Request) {
	defer req.Close()
	srv.keepAlive.disarm(s.ID)
	resp := NewResponse()
	resp.HeadRequest = req.Method == http.MethodHead

	if req.IsWebSocketUpgrade() {
		if wr := srv.findWSRoute(req); wr != nil {
			srv.upgrade(s, req, resp, wr)
			return
		}
	}

	if !srv.route(req, resp) {
		resp.Error(http.StatusNotFound, "")
	}
	if !req.KeepAlive() {
		resp.CloseAfter()
	}
	srv.Metrics.request(req.Method, resp.StatusCode)
	if err := srv.writeResponse(s, resp); err != nil || resp.closeAfter {
		srv.Transport.Disconnect(s.ID)
		return
	}
	if srv.sessions.release(s.ID) == 0 {
		srv.keepAlive.arm(s.ID)
	}
}

// dispatchParseError answers a request that could not be parsed and
// closes the connection, since the rest of its bytes can not be trusted.
func (srv *Server) dispatchParseError(s *Session, err error) {
	code := errorStatus(err)
	resp := NewResponse()
	resp.Error(code, "")
	resp.CloseAfter()
	srv.Metrics.request("", code)
	srv.writeResponse(s, resp)
	srv.Transport.Disconnect(s.ID)
}

// writeResponse writes the response in chunks of at most WriteChunkSize
// bytes while holding the session write lock.
func (srv *Server) writeResponse(s *Session, resp *Response) error {
	return srv.writeChunked(s, resp.Build())
}

func (srv *Server) writeChunked(s *Session, b []byte) error {
	chunk := srv.writeChunkSize()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for len(b) > 0 {
		n := len(b)
		if n > chunk {
			n = chunk
		}
		if !srv.Transport.Write(s.ID, b[:n]) {
			return errors.WithStack(ErrWriteFail)
		}
		b = b[n:]
	}
	return nil
}
