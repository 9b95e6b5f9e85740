package webcpp

import (
	"context"
	"net/http"
	"strings"
)

// hopHeaders are not forwarded by ReverseProxy.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ReverseProxy is a Handler that forwards requests to an upstream HTTP
// server and relays the answers. A Server calls Handle from a single
// goroutine; callers invoking Handle concurrently from outside a Server
// are bounded by the connection limit given to NewReverseProxy.
type ReverseProxy struct {
	Upstream URL     // scheme, host and port of the upstream server
	Prefix   string  // stripped from the request path before forwarding
	Client   *Client // a Client with default settings if nil
	limiter  chan struct{}
}

// NewReverseProxy returns a ReverseProxy for the upstream at rawurl
// allowing at most maxConnections concurrent upstream requests. Further
// Handle calls wait for a slot.
func NewReverseProxy(rawurl string, maxConnections int) (*ReverseProxy, error) {
	u, err := ParseURL(rawurl, true)
	if err != nil {
		return nil, err
	}
	if maxConnections < 1 {
		maxConnections = 512
	}
	return &ReverseProxy{
		Upstream: *u,
		Client:   NewClient(),
		limiter:  make(chan struct{}, maxConnections),
	}, nil
}

func (rp *ReverseProxy) outbound(req *Request) *Request {
	out := &Request{
		Method: req.Method,
		Proto:  protoHTTP11,
		URL:    rp.Upstream,
	}
	path := strings.TrimPrefix(req.URL.Path, rp.Prefix)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	out.URL.Path = path
	out.URL.Query = req.URL.Query
	out.URL.Fragment = ""
	for _, f := range req.Header.Fields {
		if f.Type == HeaderHost || f.Type == HeaderContentLength {
			continue
		}
		out.Header.Add(f.Name, f.Value)
	}
	for _, name := range hopHeaders {
		out.Header.Del(name)
	}
	if req.RemoteAddr != "" {
		host := req.RemoteAddr
		if idx := strings.LastIndexByte(host, ':'); idx > 0 {
			host = host[:idx]
		}
		if prior := out.Header.Get("X-Forwarded-For"); prior != "" {
			host = prior + ", " + host
		}
		out.Header.Set("X-Forwarded-For", host)
	}
	out.Body = req.Body
	return out
}

// Handle implements Handler. Upstream failures are answered with 502.
func (rp *ReverseProxy) Handle(req *Request, resp *Response) bool {
	if rp.limiter != nil {
		rp.limiter <- struct{}{}
		defer func() { <-rp.limiter }()
	}
	client := rp.Client
	if client == nil {
		client = NewClient()
	}
	res, err := client.Do(context.Background(), rp.outbound(req))
	if err != nil {
		resp.Error(http.StatusBadGateway, "")
		return true
	}
	resp.StatusCode = res.StatusCode
	resp.Reason = res.Reason
	for _, f := range res.Header.Fields {
		switch f.Type {
		case HeaderContentLength, HeaderDate, HeaderServer:
			continue
		}
		resp.Header.Add(f.Name, f.Value)
	}
	for _, name := range hopHeaders {
		resp.Header.Del(name)
	}
	resp.Body = append(resp.Body[:0], res.Body...)
	return true
}
