// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import (
	"math"
	"sync"
)

type eventKind int

const (
	eventRequest = eventKind(iota)
	eventParseError
	eventWSFrame
	eventWSError
)

var eventKindTexts = map[eventKind]string{
	eventRequest:    "REQ",
	eventParseError: "PERR",
	eventWSFrame:    "WSF",
	eventWSError:    "WSERR",
}

func (k eventKind) String() string {
	return eventKindTexts[k]
}

// dispatchEvent is one unit of work for the dispatcher.
type dispatchEvent struct {
	kind    eventKind
	session *Session
	req     *Request
	frame   Frame
	err     error
}

// sessionManager owns the sessions of a Server and the queue of events
// waiting for the dispatcher. A single mutex guards both. The wake
// channel only signals that the queue may be non-empty.
type sessionManager struct {
	mu         sync.Mutex
	sessions   map[ConnID]*Session
	queue      []dispatchEvent
	wake       chan struct{}
	pool       bufferPool
	newRequest func() *Request
	metrics    *Metrics
}

func newSessionManager(newRequest func() *Request, poolSize int, metrics *Metrics) *sessionManager {
	return &sessionManager{
		sessions:   make(map[ConnID]*Session),
		wake:       make(chan struct{}, 1),
		pool:       newBufferPool(poolSize),
		newRequest: newRequest,
		metrics:    metrics,
	}
}

func (sm *sessionManager) add(id ConnID, remoteAddr string) *Session {
	s := NewSession(id, remoteAddr)
	s.newRequest = sm.newRequest
	if sm.newRequest != nil {
		r := sm.newRequest()
		if r.MaxHeaderSize > 0 && r.MaxBodySize > 0 && r.MaxBodySize < int64(math.MaxInt-r.MaxHeaderSize) {
			s.MaxBuffered = r.MaxHeaderSize + int(r.MaxBodySize)
		}
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s.buf = sm.pool.alloc()
	sm.sessions[id] = s
	return s
}

// remove discards the session and anything it was accumulating.
// Events already queued for it are still dispatched.
func (sm *sessionManager) remove(id ConnID) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.sessions[id]
	if s != nil {
		delete(sm.sessions, id)
		sm.pool.free(s.buf)
		s.buf = nil
		if s.req != nil {
			s.req.Close()
			s.req = nil
		}
	}
	return s
}

func (sm *sessionManager) get(id ConnID) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.sessions[id]
}

func (sm *sessionManager) count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// appendData adds received bytes to session id and queues whatever
// became ready. It returns the number of events queued and whether
// the session is in frame mode.
func (sm *sessionManager) appendData(id ConnID, p []byte) (queued int, isWS bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.sessions[id]
	if s == nil {
		return 0, false
	}
	if err := s.AppendData(p); err != nil {
		sm.pushLocked(dispatchEvent{kind: eventParseError, session: s, err: err})
		return 1, false
	}
	return sm.processLocked(s), s.ws != nil
}

// release ends the dispatch cycle of session id and parses any bytes
// that arrived meanwhile. It returns the number of events queued.
func (sm *sessionManager) release(id ConnID) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.sessions[id]
	if s == nil {
		return 0
	}
	s.Release()
	return sm.processLocked(s)
}

// upgrade switches session id to frame mode and parses any frames that
// arrived while the handshake was answered.
func (sm *sessionManager) upgrade(id ConnID, route *wsRoute, req *Request, maxSize int) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.sessions[id]
	if s == nil {
		return false
	}
	s.upgrade(route, req, maxSize)
	sm.processLocked(s)
	return true
}

func (sm *sessionManager) processLocked(s *Session) (queued int) {
	if s.ws != nil {
		frames, err := s.processFrames()
		for _, f := range frames {
			sm.pushLocked(dispatchEvent{kind: eventWSFrame, session: s, frame: f})
		}
		queued = len(frames)
		if err != nil {
			sm.pushLocked(dispatchEvent{kind: eventWSError, session: s, err: err})
			queued++
		}
		return
	}
	done, err := s.Process()
	if err != nil {
		sm.pushLocked(dispatchEvent{kind: eventParseError, session: s, err: err})
		return 1
	}
	if done {
		sm.pushLocked(dispatchEvent{kind: eventRequest, session: s, req: s.ReadyRequest()})
		return 1
	}
	return 0
}

func (sm *sessionManager) pushLocked(ev dispatchEvent) {
	sm.queue = append(sm.queue, ev)
	sm.metrics.queueSize(len(sm.queue))
	select {
	case sm.wake <- struct{}{}:
	default:
	}
}

// pop removes the oldest queued event.
func (sm *sessionManager) pop() (ev dispatchEvent, ok bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if len(sm.queue) > 0 {
		ev, ok = sm.queue[0], true
		sm.queue[0] = dispatchEvent{}
		sm.queue = sm.queue[1:]
		if len(sm.queue) == 0 {
			sm.queue = nil
		}
		sm.metrics.queueSize(len(sm.queue))
	}
	return
}

// wsSessions returns the upgraded sessions bound to route.
func (sm *sessionManager) wsSessions(route *wsRoute) (sessions []*Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, s := range sm.sessions {
		if s.ws != nil && s.ws.route == route {
			sessions = append(sessions, s)
		}
	}
	return
}
