// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// SessionState is the position of a Session in its request cycle.
type SessionState int32

const (
	// SessionAccumulating collects bytes of a request whose header is incomplete.
	SessionAccumulating = SessionState(0)
	// SessionHeaderComplete has parsed the header and waits for the body.
	SessionHeaderComplete = SessionState(1)
	// SessionReady holds a complete request not yet taken by the dispatcher.
	SessionReady = SessionState(2)
	// SessionDispatched has handed its request to the dispatcher.
	SessionDispatched = SessionState(3)
)

var sessionStateTexts = map[SessionState]string{
	SessionAccumulating:   "ACCUM",
	SessionHeaderComplete: "HEADR",
	SessionReady:          "READY",
	SessionDispatched:     "DISPT",
}

func (st SessionState) String() string {
	return sessionStateTexts[st]
}

const sessionUserKey = "webcpp.user"

// Session accumulates the inbound bytes of one connection and tracks
// the request being parsed from them.
//
// A Session is not safe for concurrent use by itself; a Server
// serializes all access to its sessions. The values set with Set are
// the exception and may be used from any goroutine.
type Session struct {
	ID          ConnID
	RemoteAddr  string
	Created     time.Time
	MaxBuffered int // largest number of unparsed HTTP bytes held, zero means no limit
	buf         []byte
	req        *Request
	state      SessionState
	err        error
	newRequest func() *Request
	ws         *wsState
	values     *xsync.MapOf[string, interface{}]
	writeMu    sync.Mutex // held while a response is written in chunks
}

// wsState is the frame reassembly state of an upgraded session.
type wsState struct {
	route   *wsRoute
	req     *Request // the handshake request
	msgOp   Opcode   // opcode of the message being reassembled, OpContinuation if none
	msg     []byte
	maxSize int
}

// NewSession returns a Session for connection id.
func NewSession(id ConnID, remoteAddr string) *Session {
	return &Session{
		ID:         id,
		RemoteAddr: remoteAddr,
		Created:    time.Now(),
		values:     xsync.NewMapOf[string, interface{}](),
	}
}

func (s *Session) String() string {
	mode := "http"
	if s.ws != nil {
		mode = "ws"
	}
	return fmt.Sprintf("[Session %v %s %s %s %d]", s.ID, s.RemoteAddr, mode, s.state, len(s.buf))
}

// State returns the current state.
func (s *Session) State() SessionState {
	return s.state
}

// Buffered returns the number of received bytes not yet consumed.
func (s *Session) Buffered() int {
	return len(s.buf)
}

// IsWebSocket returns true once the session has switched to frame mode.
func (s *Session) IsWebSocket() bool {
	return s.ws != nil
}

// Err returns the error that stopped parsing, if any.
func (s *Session) Err() error {
	return s.err
}

// AppendData appends received bytes. Bytes arriving after a parse
// failure are dropped. Outside frame mode the buffer may not grow past
// MaxBuffered; doing so fails the session and the error is returned.
func (s *Session) AppendData(p []byte) error {
	if s.err != nil {
		return nil
	}
	if s.ws == nil && s.MaxBuffered > 0 && len(s.buf)+len(p) > s.MaxBuffered {
		s.err = errors.Wrapf(ErrSessionOverflow, "%d > %d", len(s.buf)+len(p), s.MaxBuffered)
		return s.err
	}
	s.buf = append(s.buf, p...)
	return nil
}

// Process parses the buffered bytes and returns true once a complete
// request is ready. While a request is ready or dispatched, further
// bytes are left unparsed. A parse error is returned once; the session
// stays failed afterwards.
func (s *Session) Process() (bool, error) {
	if s.ws != nil || s.err != nil {
		return false, nil
	}
	switch s.state {
	case SessionReady:
		return true, nil
	case SessionDispatched:
		return false, nil
	}
	if len(s.buf) == 0 {
		return false, nil
	}
	if s.req == nil {
		if s.newRequest != nil {
			s.req = s.newRequest()
		} else {
			s.req = &Request{}
		}
	}
	done, err := s.req.Parse(s.buf)
	if err != nil {
		s.err = err
		s.state = SessionDispatched
		return false, err
	}
	if s.req.HeaderComplete() {
		s.state = SessionHeaderComplete
	}
	if done {
		s.state = SessionReady
	}
	return done, nil
}

// ReadyRequest detaches and returns the completed request, or nil if
// there is none. The request bytes are removed from the buffer; any
// bytes following them stay unparsed until Release is called.
func (s *Session) ReadyRequest() *Request {
	if s.state != SessionReady {
		return nil
	}
	req := s.req
	s.req = nil
	s.consume(req.Size())
	s.state = SessionDispatched
	req.ConnID = s.ID
	req.RemoteAddr = s.RemoteAddr
	req.session = s
	return req
}

// Release ends the dispatched cycle so the next request can be parsed.
func (s *Session) Release() {
	if s.state == SessionDispatched && s.err == nil {
		s.state = SessionAccumulating
	}
}

func (s *Session) consume(n int) {
	if n >= len(s.buf) {
		s.buf = s.buf[:0]
		return
	}
	s.buf = s.buf[:copy(s.buf, s.buf[n:])]
}

// upgrade switches the session to frame mode for the rest of its life.
func (s *Session) upgrade(route *wsRoute, req *Request, maxSize int) {
	s.ws = &wsState{route: route, req: req, maxSize: maxSize}
	s.state = SessionDispatched
}

// processFrames parses every complete frame in the buffer. Data frames
// are reassembled into whole messages; control frames are returned as
// they arrive.
func (s *Session) processFrames() (frames []Frame, err error) {
	if s.ws == nil || s.err != nil {
		return nil, nil
	}
	ws := s.ws
	pos := 0
	defer func() { s.consume(pos) }()
	for {
		f, n, perr := ParseFrame(s.buf[pos:])
		if perr != nil {
			s.err = perr
			return frames, perr
		}
		if n == 0 {
			s.err = ws.checkDeclared(FrameHeader(s.buf[pos:]))
			return frames, s.err
		}
		pos += n
		if f.Opcode.IsControl() {
			frames = append(frames, f)
			continue
		}
		if f.Opcode == OpContinuation {
			if ws.msgOp == OpContinuation {
				s.err = errors.Wrap(ErrBadOpcode, "continuation without message")
				return frames, s.err
			}
		} else {
			if ws.msgOp != OpContinuation {
				s.err = errors.Wrapf(ErrBadOpcode, "%s inside fragmented message", f.Opcode)
				return frames, s.err
			}
			ws.msgOp = f.Opcode
		}
		if ws.maxSize > 0 && len(ws.msg)+len(f.Payload) > ws.maxSize {
			s.err = errors.Wrapf(ErrMessageTooBig, "%d > %d", len(ws.msg)+len(f.Payload), ws.maxSize)
			return frames, s.err
		}
		ws.msg = append(ws.msg, f.Payload...)
		if f.Fin {
			frames = append(frames, Frame{Fin: true, Opcode: ws.msgOp, Payload: ws.msg})
			ws.msg = nil
			ws.msgOp = OpContinuation
		}
	}
}

// checkDeclared rejects a partially received frame whose declared
// payload can never be accepted, so its bytes are not buffered.
func (ws *wsState) checkDeclared(fh FrameHeader) error {
	if !fh.Complete() {
		return nil
	}
	size := fh.PayloadSize()
	if fh.Opcode().IsControl() {
		if size > MaxWSControlPayload {
			return errors.Wrapf(ErrBadControl, "%v", fh)
		}
		return nil
	}
	if ws.maxSize > 0 && size > uint64(ws.maxSize-len(ws.msg)) {
		return errors.Wrapf(ErrMessageTooBig, "%d more than %d", size, ws.maxSize-len(ws.msg))
	}
	return nil
}

// Set stores a value on the session.
func (s *Session) Set(key string, value interface{}) {
	s.values.Store(key, value)
}

// Get returns a value stored with Set.
func (s *Session) Get(key string) (interface{}, bool) {
	return s.values.Load(key)
}

// Delete removes a value stored with Set.
func (s *Session) Delete(key string) {
	s.values.Delete(key)
}

// User returns the authenticated user name, if any.
func (s *Session) User() string {
	if v, ok := s.values.Load(sessionUserKey); ok {
		if user, ok := v.(string); ok {
			return user
		}
	}
	return ""
}

// SetUser records the authenticated user name.
func (s *Session) SetUser(user string) {
	s.values.Store(sessionUserKey, user)
}
