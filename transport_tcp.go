// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// TCPTransport is a Transport over TCP, optionally with TLS.
// Each connection is read by its own goroutine.
type TCPTransport struct {
	Addr           string        // TCP address to listen on, DefaultListenAddr if empty
	TLSConfig      *tls.Config   // if not nil, connections use TLS
	MaxConns       int           // maximum number of concurrent connections, unlimited if < 1
	ReadBufferSize int           // bytes read per call, DefaultReadBufferSize if < 1
	WriteTimeout   time.Duration // write timeout per Write call
	StatsCollector               // Where to report statistics (optional)
	handler        TransportHandler
	conns          *xsync.MapOf[ConnID, *tcpConn]
	lastID         uint64
	mu             sync.Mutex
	listener       net.Listener
	limiter        chan struct{}
	doneChan       chan struct{}
	wg             sync.WaitGroup
	netLog         int32
}

type tcpConn struct {
	id  ConnID
	rwc net.Conn
	wmu sync.Mutex
}

func (c *tcpConn) String() string {
	return c.id.String() + " " + c.rwc.RemoteAddr().String()
}

// tcpKeepAliveListener sets TCP keep-alive timeouts on accepted
// network connections so dead peers eventually go away.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

// NewTCPTransport returns a TCPTransport that will listen on addr.
func NewTCPTransport(addr string) *TCPTransport {
	return &TCPTransport{Addr: addr}
}

// NetLog enables or disables logging of network data and connection
// state changes using the standard logger.
func (t *TCPTransport) NetLog(state bool) {
	var v int32
	if state {
		v = 1
	}
	atomic.StoreInt32(&t.netLog, v)
}

func (t *TCPTransport) logging() bool {
	return atomic.LoadInt32(&t.netLog) != 0
}

// Listen announces on the local network address. Addr is updated
// with the address actually bound.
func (t *TCPTransport) Listen(address string) (net.Listener, error) {
	if address == "" {
		address = DefaultListenAddr
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Addr = ln.Addr().String()
	ln = tcpKeepAliveListener{ln.(*net.TCPListener)}
	if t.TLSConfig != nil {
		ln = tls.NewListener(ln, t.TLSConfig)
	}
	t.listener = ln
	return ln, nil
}

// Init implements Transport. It listens on Addr unless Listen was
// already called.
func (t *TCPTransport) Init(h TransportHandler) error {
	t.mu.Lock()
	t.handler = h
	if t.conns == nil {
		t.conns = xsync.NewMapOf[ConnID, *tcpConn]()
	}
	if t.MaxConns > 0 && t.limiter == nil {
		t.limiter = make(chan struct{}, t.MaxConns)
	}
	t.doneChan = make(chan struct{})
	needListen := t.listener == nil
	addr := t.Addr
	t.mu.Unlock()
	if needListen {
		_, err := t.Listen(addr)
		return err
	}
	return nil
}

func (t *TCPTransport) getDoneChan() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doneChan == nil {
		t.doneChan = make(chan struct{})
	}
	return t.doneChan
}

// Run implements Transport. It accepts connections until Close is
// called or ctx is done, and then returns ErrServerClosed.
func (t *TCPTransport) Run(ctx context.Context) error {
	t.mu.Lock()
	ln := t.listener
	t.mu.Unlock()
	if ln == nil {
		select {
		case <-t.getDoneChan():
			return errors.WithStack(ErrServerClosed)
		default:
		}
		return errors.New("TCPTransport.Run(): not initialized")
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			t.Close(false)
		case <-stopped:
		}
	}()

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		rwc, err := ln.Accept()
		if err != nil {
			select {
			case <-t.getDoneChan():
				return errors.WithStack(ErrServerClosed)
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				time.Sleep(tempDelay)
				continue
			}
			return errors.WithStack(err)
		}
		tempDelay = 0
		if t.limiter != nil {
			t.limiter <- struct{}{}
		}
		t.startConn(rwc)
	}
}

// Connect dials addr and adds the connection to the transport, as if
// it had been accepted. Init must have been called.
func (t *TCPTransport) Connect(ctx context.Context, addr string) (ConnID, error) {
	d := net.Dialer{Timeout: DefaultDialTimeout}
	rwc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if t.TLSConfig != nil {
		rwc = tls.Client(rwc, t.TLSConfig)
	}
	if t.limiter != nil {
		t.limiter <- struct{}{}
	}
	return t.startConn(rwc), nil
}

func (t *TCPTransport) startConn(rwc net.Conn) ConnID {
	c := &tcpConn{
		id:  ConnID(atomic.AddUint64(&t.lastID, 1)),
		rwc: rwc,
	}
	t.conns.Store(c.id, c)
	t.wg.Add(1)
	// OnNewConnection must precede any OnDataReady for the connection.
	t.handler.OnNewConnection(c.id, rwc.RemoteAddr().String())
	go t.serveConn(c)
	return c.id
}

func (t *TCPTransport) serveConn(c *tcpConn) {
	defer t.wg.Done()
	if t.logging() {
		log.Print("OPEN ", c)
	}
	size := t.ReadBufferSize
	if size < 1 {
		size = DefaultReadBufferSize
	}
	buf := make([]byte, size)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			if t.StatsCollector != nil {
				t.StatsCollector.AddBytesRead(int64(n))
			}
			if t.logging() {
				log.Printf("READ %v %q", c, buf[:n])
			}
			t.handler.OnDataReady(c.id, buf[:n])
		}
		if err != nil {
			break
		}
	}
	t.conns.Delete(c.id)
	c.rwc.Close()
	if t.logging() {
		log.Print("SHUT ", c)
	}
	if t.limiter != nil {
		<-t.limiter
	}
	t.handler.OnConnectionClosed(c.id)
}

// Write implements Transport.
func (t *TCPTransport) Write(id ConnID, p []byte) bool {
	c, ok := t.conns.Load(id)
	if !ok {
		return false
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if t.WriteTimeout > 0 {
		c.rwc.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
	}
	n, err := c.rwc.Write(p)
	if t.StatsCollector != nil && n > 0 {
		t.StatsCollector.AddBytesWritten(int64(n))
	}
	if t.logging() {
		log.Printf("WRIT %v %q", c, p[:n])
	}
	if err != nil {
		c.rwc.Close()
		return false
	}
	return true
}

// Disconnect implements Transport.
func (t *TCPTransport) Disconnect(id ConnID) {
	if c, ok := t.conns.Load(id); ok {
		c.rwc.Close()
	}
}

// Conns returns the number of open connections.
func (t *TCPTransport) Conns() int {
	if t.conns == nil {
		return 0
	}
	return t.conns.Size()
}

// Close implements Transport. It stops accepting, and closes every open
// connection.
func (t *TCPTransport) Close(wait bool) (err error) {
	t.mu.Lock()
	if t.doneChan == nil {
		t.doneChan = make(chan struct{})
	}
	select {
	case <-t.doneChan:
	default:
		close(t.doneChan)
	}
	if t.listener != nil {
		err = t.listener.Close()
		t.listener = nil
	}
	t.mu.Unlock()
	if t.conns != nil {
		t.conns.Range(func(_ ConnID, c *tcpConn) bool {
			c.rwc.Close()
			return true
		})
	}
	if wait {
		t.wg.Wait()
	}
	return
}
