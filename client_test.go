package webcpp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubServer accepts connections and answers each with reply and closes
// them. If reply is empty the connection is held open instead.
func stubServer(t *testing.T, reply string) (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			rwc, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer rwc.Close()
				var b [1024]byte
				if _, err := rwc.Read(b[:]); err != nil {
					return
				}
				if reply != "" {
					rwc.Write([]byte(reply))
					return
				}
				rwc.SetReadDeadline(time.Now().Add(2 * time.Second))
				rwc.Read(b[:])
			}()
		}
	}()
	return ln.Addr().String(), func() {
		ln.Close()
		<-done
	}
}

func Test_Client_GetAndPost(t *testing.T) {
	defer leaktest.Check(t)()
	st := newSrvTester(t, nil)
	defer st.Close()

	c := st.client()
	resp, err := c.Get(context.Background(), st.URL("/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(resp.Body))

	resp, err = c.Post(context.Background(), st.URL("/echo/post?a=1"), "text/plain", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	echo := string(resp.Body)
	assert.True(t, strings.HasPrefix(echo, "POST /echo/post?a=1 HTTP/1.1\r\n"), echo)
	assert.Contains(t, echo, "Connection: close\r\n")
	assert.Contains(t, echo, "Content-Type: text/plain\r\n")
	assert.Contains(t, echo, "Content-Length: 7\r\n")
	assert.True(t, strings.HasSuffix(echo, "\r\n\r\npayload"), echo)

	assert.Eventually(t, func() bool { return st.tcp.Conns() == 0 }, time.Second, 10*time.Millisecond)
}

func Test_Client_ConnSequence(t *testing.T) {
	defer leaktest.Check(t)()
	st := newSrvTester(t, nil)
	defer st.Close()

	cc, err := st.client().Dial(context.Background(), st.URL("/"))
	require.NoError(t, err)
	defer cc.Close()

	for i := 0; i < 3; i++ {
		u, err := ParseURL("/echo/relative", false)
		require.NoError(t, err)
		req := &Request{Method: http.MethodGet, Proto: protoHTTP11, URL: *u}
		resp, err := cc.Do(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(resp.Body), "GET /echo/relative HTTP/1.1\r\n"))
		assert.Contains(t, string(resp.Body), "Host: "+st.tcp.Addr+"\r\n")
	}

	req, err := NewRequest(http.MethodHead, st.URL("/big/100"), nil)
	require.NoError(t, err)
	resp, err := cc.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "100", resp.Header.Get("Content-Length"))
	assert.Empty(t, resp.Body)

	req, err = NewRequest(http.MethodGet, st.URL("/big/5"), nil)
	require.NoError(t, err)
	resp, err = cc.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "xxxxx", string(resp.Body))
	assert.Equal(t, 1, st.srv.Sessions())
}

func Test_Client_MaxBodySize(t *testing.T) {
	defer leaktest.Check(t)()
	st := newSrvTester(t, nil)
	defer st.Close()

	c := st.client()
	c.MaxBodySize = 10
	_, err := c.Get(context.Background(), st.URL("/big/100"))
	assert.True(t, IsResourceExhaustion(err), "%v", err)
}

func Test_Client_HugeContentLength(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := stubServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 9223372036854775807\r\n\r\nabc")
	defer stop()
	c := NewClient()
	c.MaxBodySize = -1
	_, err := c.Get(context.Background(), "http://"+addr+"/")
	assert.True(t, IsResourceExhaustion(err), "%v", err)
	assert.Equal(t, ErrBodyTooLarge, errors.Cause(err))
}

func Test_Client_DefaultMaxBodySize(t *testing.T) {
	defer leaktest.Check(t)()

	addr, stop := stubServer(t, fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\nabc", DefaultMaxBodySize+1))
	defer stop()
	_, err := NewClient().Get(context.Background(), "http://"+addr+"/")
	assert.True(t, IsResourceExhaustion(err), "%v", err)
}

func Test_Client_Errors(t *testing.T) {
	defer leaktest.Check(t)()

	c := NewClient()
	_, err := c.Get(context.Background(), "nonsense")
	assert.True(t, IsMalformed(err), "%v", err)
	_, err = c.Get(context.Background(), "ftp://example.com/")
	assert.True(t, IsMalformed(err), "%v", err)

	addr, stop := stubServer(t, "garbage\r\n\r\n")
	_, err = c.Get(context.Background(), "http://"+addr+"/")
	assert.True(t, IsMalformed(err), "%v", err)
	stop()

	addr, stop = stubServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort")
	_, err = c.Get(context.Background(), "http://"+addr+"/")
	assert.Equal(t, ErrConnClosed, errors.Cause(err), "%v", err)
	stop()

	// the closed listener refuses connections
	_, err = c.Get(context.Background(), "http://"+addr+"/")
	assert.Error(t, err)
}

func Test_Client_Timeouts(t *testing.T) {
	defer leaktest.Check(t)()
	addr, stop := stubServer(t, "")
	defer stop()

	c := NewClient()
	c.ReadTimeout = 50 * time.Millisecond
	start := time.Now()
	_, err := c.Get(context.Background(), "http://"+addr+"/")
	assert.Equal(t, ErrConnClosed, errors.Cause(err), "%v", err)
	assert.Less(t, time.Since(start), time.Second)

	c.ReadTimeout = time.Minute
	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()
	_, err = c.Get(ctx, "http://"+addr+"/")
	assert.Equal(t, context.Canceled, errors.Cause(err), "%v", err)
}
