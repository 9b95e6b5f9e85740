// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Handler answers HTTP requests. Handle returns false if it did not
// handle the request, letting later routes or the PostRoute hook try.
type Handler interface {
	Handle(req *Request, resp *Response) bool
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req *Request, resp *Response) bool

// Handle calls f(req, resp).
func (f HandlerFunc) Handle(req *Request, resp *Response) bool {
	return f(req, resp)
}

type routeEntry struct {
	route   *Route
	handler Handler
}

// Server is an HTTP/1.1 and WebSocket server running on a Transport.
// Requests are dispatched one at a time by a single goroutine.
type Server struct {
	Transport        Transport     // where connections come from, a TCPTransport on DefaultListenAddr if nil
	KeepAlive        time.Duration // idle time before a connection is closed, DefaultKeepAlive if zero, never if negative
	KeepAliveTick    time.Duration // how often idle connections are looked for, DefaultKeepAliveTick if zero
	MaxBodySize      int64         // largest accepted Content-Length, DefaultMaxBodySize if zero, unlimited if negative
	MaxHeaderSize    int           // largest accepted start line and header, DefaultMaxHeaderSize if zero, unlimited if negative
	MaxWSMessageSize int           // largest reassembled WebSocket message, DefaultMaxWSMessageSize if zero
	WriteChunkSize   int           // largest single transport write, DefaultWriteChunkSize if zero
	BodyOptions      BodyOptions   // how request bodies are parsed by Request.Form
	PreRoute         Handler       // runs before routing; returning true skips the routes
	PostRoute        Handler       // runs after routing; returning true marks the request handled
	Logger           *log.Logger   // nil means the standard logger
	Metrics          *Metrics      // optional
	mu               sync.Mutex
	routes           []routeEntry
	wsRoutes         []*wsRoute
	sessions         *sessionManager
	keepAlive        *keepAlive
	doneChan         chan struct{}
	bytesWritten     int64
	bytesRead        int64
	serving          int32
}

// NewServer returns a Server using t, or a TCPTransport listening on
// addr if t is nil.
func NewServer(t Transport) *Server {
	return &Server{Transport: t}
}

// ListenAndServe serves on a TCPTransport listening on addr.
func ListenAndServe(addr string, srv *Server) error {
	srv.Transport = NewTCPTransport(addr)
	return srv.Serve(context.Background())
}

func (srv *Server) logf(format string, v ...interface{}) {
	if srv.Logger != nil {
		srv.Logger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

// Handle registers handler for requests using method whose path matches
// template. An empty method matches any method. Routes are tried in
// registration order.
func (srv *Server) Handle(method, template string, handler Handler) error {
	route, err := CompileRoute(method, template)
	if err != nil {
		return err
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.routes = append(srv.routes, routeEntry{route: route, handler: handler})
	return nil
}

// HandleFunc registers a handler function, see Handle.
func (srv *Server) HandleFunc(method, template string, f func(req *Request, resp *Response) bool) error {
	return srv.Handle(method, template, HandlerFunc(f))
}

func (srv *Server) getRoutes() []routeEntry {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.routes
}

func (srv *Server) maxBodySize() int64 {
	if srv.MaxBodySize == 0 {
		return DefaultMaxBodySize
	} else if srv.MaxBodySize < 0 {
		return 0
	}
	return srv.MaxBodySize
}

func (srv *Server) maxHeaderSize() int {
	if srv.MaxHeaderSize == 0 {
		return DefaultMaxHeaderSize
	} else if srv.MaxHeaderSize < 0 {
		return 0
	}
	return srv.MaxHeaderSize
}

func (srv *Server) maxWSMessageSize() int {
	if srv.MaxWSMessageSize <= 0 {
		return DefaultMaxWSMessageSize
	}
	return srv.MaxWSMessageSize
}

func (srv *Server) writeChunkSize() int {
	if srv.WriteChunkSize <= 0 {
		return DefaultWriteChunkSize
	}
	return srv.WriteChunkSize
}

func (srv *Server) keepAliveTimeout() time.Duration {
	if srv.KeepAlive == 0 {
		return DefaultKeepAlive
	}
	return srv.KeepAlive
}

func (srv *Server) newRequest() *Request {
	return &Request{
		message: message{
			MaxBodySize:   srv.maxBodySize(),
			MaxHeaderSize: srv.maxHeaderSize(),
		},
		BodyOptions: srv.BodyOptions,
	}
}

func (srv *Server) getDoneChan() <-chan struct{} {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.getDoneChanLocked()
}

func (srv *Server) getDoneChanLocked() chan struct{} {
	if srv.doneChan == nil {
		srv.doneChan = make(chan struct{})
	}
	return srv.doneChan
}

func (srv *Server) closeDoneChanLocked() {
	ch := srv.getDoneChanLocked()
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// Init prepares the server and its transport. Serve calls it if needed;
// calling it first lets the caller learn the bound address of a
// TCPTransport before serving.
func (srv *Server) Init() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.sessions != nil {
		return nil
	}
	select {
	case <-srv.getDoneChanLocked():
		return errors.WithStack(ErrServerClosed)
	default:
	}
	if srv.Transport == nil {
		srv.Transport = NewTCPTransport(DefaultListenAddr)
	}
	if tcp, ok := srv.Transport.(*TCPTransport); ok && tcp.StatsCollector == nil {
		tcp.StatsCollector = srv
	}
	srv.sessions = newSessionManager(srv.newRequest, BufferPoolSize, srv.Metrics)
	srv.keepAlive = newKeepAlive(srv.keepAliveTimeout(), srv.KeepAliveTick)
	if err := srv.Transport.Init(srv); err != nil {
		srv.sessions = nil
		return err
	}
	return nil
}

// Serve runs the transport, the dispatcher and the keep-alive scanner
// until Close is called or ctx is done. It returns ErrServerClosed
// after Close.
func (srv *Server) Serve(ctx context.Context) error {
	if err := srv.Init(); err != nil {
		return err
	}
	if !atomic.CompareAndSwapInt32(&srv.serving, 0, 1) {
		return errors.New("Server.Serve(): already serving")
	}
	defer atomic.StoreInt32(&srv.serving, 0)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Transport.Run(gctx)
	})
	g.Go(func() error {
		return srv.dispatchLoop(gctx)
	})
	g.Go(func() error {
		return srv.keepAlive.run(gctx, srv.expire)
	})
	g.Go(func() error {
		select {
		case <-srv.getDoneChan():
			return errors.WithStack(ErrServerClosed)
		case <-gctx.Done():
			return nil
		}
	})
	err := g.Wait()
	srv.Transport.Close(true)
	if err != nil && !isClosedError(err) {
		srv.logf("webcpp: serve: %v", err)
	}
	return err
}

// Close stops the server. The transport stops accepting, open
// connections are closed and Serve returns once the dispatcher has
// finished its current event.
func (srv *Server) Close() error {
	srv.mu.Lock()
	srv.closeDoneChanLocked()
	t := srv.Transport
	srv.mu.Unlock()
	if t != nil {
		return t.Close(false)
	}
	return nil
}

// Sessions returns the number of open sessions.
func (srv *Server) Sessions() int {
	if srv.sessions == nil {
		return 0
	}
	return srv.sessions.count()
}

// Session returns the session of connection id, or nil.
func (srv *Server) Session(id ConnID) *Session {
	if srv.sessions == nil {
		return nil
	}
	return srv.sessions.get(id)
}

// OnNewConnection implements TransportHandler.
func (srv *Server) OnNewConnection(id ConnID, remoteAddr string) {
	srv.sessions.add(id, remoteAddr)
	srv.keepAlive.arm(id)
	srv.Metrics.sessionOpened()
}

// OnDataReady implements TransportHandler.
func (srv *Server) OnDataReady(id ConnID, p []byte) {
	armed := srv.keepAlive.take(id)
	queued, isWS := srv.sessions.appendData(id, p)
	if armed && queued == 0 && !isWS {
		srv.keepAlive.arm(id)
	}
}

// OnConnectionClosed implements TransportHandler.
func (srv *Server) OnConnectionClosed(id ConnID) {
	srv.keepAlive.disarm(id)
	if srv.sessions.remove(id) != nil {
		srv.Metrics.sessionClosed()
	}
}

func (srv *Server) expire(id ConnID) {
	srv.Metrics.keepAliveExpired()
	srv.Transport.Disconnect(id)
}

// AddBytesWritten adds n to the number of bytes written statistic.
func (srv *Server) AddBytesWritten(n int64) {
	atomic.AddInt64(&srv.bytesWritten, n)
	srv.Metrics.addBytesWritten(n)
}

// BytesWritten returns the current number of bytes written.
func (srv *Server) BytesWritten() int64 {
	return atomic.LoadInt64(&srv.bytesWritten)
}

// AddBytesRead adds n to the number of bytes read statistic.
func (srv *Server) AddBytesRead(n int64) {
	atomic.AddInt64(&srv.bytesRead, n)
	srv.Metrics.addBytesRead(n)
}

// BytesRead returns the current number of bytes read.
func (srv *Server) BytesRead() int64 {
	return atomic.LoadInt64(&srv.bytesRead)
}
