// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Client sends requests built by the message codec and parses the
// responses incrementally, the same way a Server parses requests.
type Client struct {
	DialTimeout   time.Duration // dialing timeout, DefaultDialTimeout if zero
	ReadTimeout   time.Duration // time allowed for the whole response, DefaultReadTimeout if zero
	TLSConfig     *tls.Config   // used for https and wss, a zero config if nil
	MaxBodySize   int64         // largest accepted response body, DefaultMaxBodySize if zero, unlimited if negative
	MaxHeaderSize int           // largest accepted response header, DefaultMaxHeaderSize if zero
	StatsCollector
}

// NewClient returns a Client with default timeouts.
func NewClient() *Client {
	return &Client{
		DialTimeout: DefaultDialTimeout,
		ReadTimeout: DefaultReadTimeout,
	}
}

func (c *Client) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return c.DialTimeout
}

func (c *Client) readTimeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return DefaultReadTimeout
	}
	return c.ReadTimeout
}

func (c *Client) maxBodySize() int64 {
	if c.MaxBodySize == 0 {
		return DefaultMaxBodySize
	} else if c.MaxBodySize < 0 {
		return 0
	}
	return c.MaxBodySize
}

func (c *Client) maxHeaderSize() int {
	if c.MaxHeaderSize <= 0 {
		return DefaultMaxHeaderSize
	}
	return c.MaxHeaderSize
}

// dial connects to the host of u, using TLS for secure schemes.
func (c *Client) dial(ctx context.Context, u *URL) (net.Conn, error) {
	if !u.Usable() {
		return nil, errors.Wrapf(ErrBadURL, "%v", u)
	}
	d := net.Dialer{Timeout: c.dialTimeout()}
	rwc, err := d.DialContext(ctx, "tcp", u.HostPort())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if u.Scheme.Secure() {
		cfg := c.TLSConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = u.Host
		}
		tc := tls.Client(rwc, cfg)
		if err = tc.HandshakeContext(ctx); err != nil {
			rwc.Close()
			return nil, errors.WithStack(err)
		}
		rwc = tc
	}
	return rwc, nil
}

// Dial opens a connection to the host of rawurl for sending several
// requests in sequence.
func (c *Client) Dial(ctx context.Context, rawurl string) (*ClientConn, error) {
	u, err := ParseURL(rawurl, true)
	if err != nil {
		return nil, err
	}
	rwc, err := c.dial(ctx, u)
	if err != nil {
		return nil, err
	}
	return &ClientConn{client: c, rwc: rwc, url: *u}, nil
}

// Do sends req on a new connection and returns the response. The
// connection is closed afterwards.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	rwc, err := c.dial(ctx, &req.URL)
	if err != nil {
		return nil, err
	}
	cc := &ClientConn{client: c, rwc: rwc, url: req.URL}
	defer cc.Close()
	req.Header.SetType(HeaderConnection, "close")
	return cc.Do(ctx, req)
}

// Get sends a GET request for rawurl.
func (c *Client) Get(ctx context.Context, rawurl string) (*Response, error) {
	req, err := NewRequest(http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Post sends a POST request for rawurl with the given body.
func (c *Client) Post(ctx context.Context, rawurl, contentType string, body []byte) (*Response, error) {
	req, err := NewRequest(http.MethodPost, rawurl, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.SetType(HeaderContentType, contentType)
	}
	return c.Do(ctx, req)
}

// ClientConn is one client connection carrying requests one at a time.
type ClientConn struct {
	client *Client
	rwc    net.Conn
	url    URL
	mu     sync.Mutex // one request at a time
	buf    []byte     // bytes read past the last response
}

func (cc *ClientConn) String() string {
	return fmt.Sprintf("[ClientConn %s %s]", cc.url.HostPort(), cc.rwc.RemoteAddr())
}

// Close closes the connection.
func (cc *ClientConn) Close() error {
	return cc.rwc.Close()
}

// Do sends req and waits for its response. A relative req.URL is
// resolved against the URL the connection was dialed with.
func (cc *ClientConn) Do(ctx context.Context, req *Request) (*Response, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if !req.URL.Usable() {
		path, query := req.URL.Path, req.URL.Query
		req.URL = cc.url
		req.URL.Path, req.URL.Query = path, query
		req.Target = ""
	}
	if err := cc.write(req.Build()); err != nil {
		return nil, err
	}
	resp := &Response{HeadRequest: req.Method == http.MethodHead}
	resp.MaxBodySize = cc.client.maxBodySize()
	resp.MaxHeaderSize = cc.client.maxHeaderSize()
	if err := cc.readResponse(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (cc *ClientConn) write(p []byte) error {
	n, err := cc.rwc.Write(p)
	if sc := cc.client.StatsCollector; sc != nil && n > 0 {
		sc.AddBytesWritten(int64(n))
	}
	return errors.WithStack(err)
}

// readResponse reads until resp is complete. Bytes following the
// response are kept for the next one.
func (cc *ClientConn) readResponse(ctx context.Context, resp *Response) error {
	deadline := time.Now().Add(cc.client.readTimeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	cc.rwc.SetReadDeadline(deadline)
	defer cc.rwc.SetReadDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { cc.rwc.SetReadDeadline(time.Now()) })
	defer stop()

	chunk := make([]byte, DefaultReadBufferSize)
	for {
		if len(cc.buf) > 0 {
			done, err := resp.Parse(cc.buf)
			if err != nil {
				return err
			}
			if done {
				n := resp.Size()
				cc.buf = cc.buf[:copy(cc.buf, cc.buf[n:])]
				return nil
			}
		}
		n, err := cc.rwc.Read(chunk)
		if n > 0 {
			if sc := cc.client.StatsCollector; sc != nil {
				sc.AddBytesRead(int64(n))
			}
			cc.buf = append(cc.buf, chunk[:n]...)
		}
		if err != nil {
			if n > 0 {
				continue
			}
			if ctx.Err() != nil {
				return errors.WithStack(ctx.Err())
			}
			return errors.Wrap(ErrConnClosed, err.Error())
		}
	}
}
