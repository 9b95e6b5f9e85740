package webcpp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds(user string) (string, bool) {
	if user == "alice" {
		return "secret", true
	}
	return "", false
}

func digestAuthorization(challenge, user, pass, method, uri string) string {
	p := ParseAuthParams(strings.TrimPrefix(challenge, "Digest "))
	resp := DigestResponse(user, p["realm"], pass, method, uri, p["nonce"], "00000001", "0a4f113b", "auth")
	return fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", qop=auth, nc=00000001, cnonce="0a4f113b", response="%s"`,
		user, p["realm"], p["nonce"], uri, resp)
}

func Test_ParseAuthParams(t *testing.T) {
	p := ParseAuthParams(`username="Mufasa", realm="say \"hi\", now",nc=00000001 , qop=auth, empty=""`)
	assert.Equal(t, map[string]string{
		"username": "Mufasa",
		"realm":    `say "hi", now`,
		"nc":       "00000001",
		"qop":      "auth",
		"empty":    "",
	}, p)
	assert.Empty(t, ParseAuthParams("no pairs here"))
}

func Test_DigestResponse(t *testing.T) {
	// RFC 2617 section 3.5
	assert.Equal(t, "6629fae49393a05397450978507c4ef1", DigestResponse("Mufasa", "testrealm@host.com", "Circle Of Life",
		"GET", "/dir/index.html", "dcd98b7102dd2f0e8b11d0f600bfb0c093", "00000001", "0a4f113b", "auth"))
}

func Test_BasicAuth_Authenticate(t *testing.T) {
	var b BasicAuth
	req := &Request{}
	params := func(s string) string { return strings.TrimPrefix(s, "Basic ") }

	user, ok := b.Authenticate(req, params(BasicAuthorization("alice", "secret")), "r", testCreds)
	assert.True(t, ok)
	assert.Equal(t, "alice", user)

	_, ok = b.Authenticate(req, params(BasicAuthorization("alice", "wrong")), "r", testCreds)
	assert.False(t, ok)
	_, ok = b.Authenticate(req, params(BasicAuthorization("bob", "secret")), "r", testCreds)
	assert.False(t, ok)
	_, ok = b.Authenticate(req, "!!!", "r", testCreds)
	assert.False(t, ok)
	_, ok = b.Authenticate(req, "YWxpY2U=", "r", testCreds) // no colon
	assert.False(t, ok)
	assert.Equal(t, `Basic realm="r"`, b.Challenge("r"))
}

func Test_DigestAuth_Authenticate(t *testing.T) {
	d := NewDigestAuth(time.Minute)
	challenge := d.Challenge("r")
	assert.True(t, strings.HasPrefix(challenge, `Digest realm="r", qop="auth"`), challenge)
	req := &Request{Method: http.MethodGet}
	params := func(s string) string { return strings.TrimPrefix(s, "Digest ") }

	user, ok := d.Authenticate(req, params(digestAuthorization(challenge, "alice", "secret", "GET", "/x")), "r", testCreds)
	assert.True(t, ok)
	assert.Equal(t, "alice", user)

	_, ok = d.Authenticate(req, params(digestAuthorization(challenge, "alice", "wrong", "GET", "/x")), "r", testCreds)
	assert.False(t, ok)
	_, ok = d.Authenticate(req, params(digestAuthorization(challenge, "alice", "secret", "POST", "/x")), "r", testCreds)
	assert.False(t, ok)
	_, ok = d.Authenticate(req, params(digestAuthorization(challenge, "alice", "secret", "GET", "/x")), "other", testCreds)
	assert.False(t, ok)

	forged := strings.Replace(challenge, "nonce=\"", "nonce=\"00", 1)
	_, ok = d.Authenticate(req, params(digestAuthorization(forged, "alice", "secret", "GET", "/x")), "r", testCreds)
	assert.False(t, ok)

	short := NewDigestAuth(time.Millisecond)
	challenge = short.Challenge("r")
	time.Sleep(5 * time.Millisecond)
	_, ok = short.Authenticate(req, params(digestAuthorization(challenge, "alice", "secret", "GET", "/x")), "r", testCreds)
	assert.False(t, ok)
}

func Test_AuthRegistry_Register(t *testing.T) {
	r := NewAuthRegistry(BasicAuth{})
	assert.NotNil(t, r.Get("basic"))
	assert.Nil(t, r.Get("Digest"))

	d := NewDigestAuth(0)
	r.Register(d)
	r.Register(NewDigestAuth(0))
	assert.Len(t, r.schemes, 2)
	assert.NotSame(t, d, r.Get("DIGEST"))

	req := &Request{}
	req.Header.SetType(HeaderAuthorization, BasicAuthorization("alice", "secret"))
	user, ok := r.Authenticate(req, "r", testCreds)
	assert.True(t, ok)
	assert.Equal(t, "alice", user)

	req.Header.SetType(HeaderAuthorization, "Bearer abc")
	_, ok = r.Authenticate(req, "r", testCreds)
	assert.False(t, ok)
}

func newAuthTester(t *testing.T) *srvTester {
	return newSrvTester(t, func(st *srvTester) {
		auth := NewAuthRegistry(BasicAuth{}, NewDigestAuth(0))
		require.NoError(t, st.srv.Handle("", "/private[/*]", auth.Gate("test", testCreds)))
		require.NoError(t, st.srv.HandleFunc("", "/private[/*]", func(req *Request, resp *Response) bool {
			resp.SetText("welcome " + req.Session().User())
			return true
		}))
	})
}

func Test_AuthRegistry_GateBasic(t *testing.T) {
	defer leaktest.Check(t)()
	st := newAuthTester(t)
	defer st.Close()

	cc := st.rawConn()
	defer cc.Close()
	ctx := context.Background()

	req, err := NewRequest(http.MethodGet, st.URL("/private"), nil)
	require.NoError(t, err)
	resp, err := cc.Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	challenges := resp.Header.Values("WWW-Authenticate")
	require.Len(t, challenges, 2)
	assert.Equal(t, `Basic realm="test"`, challenges[0])
	assert.True(t, strings.HasPrefix(challenges[1], "Digest "))

	req, err = NewRequest(http.MethodGet, st.URL("/private"), nil)
	require.NoError(t, err)
	req.Header.SetType(HeaderAuthorization, BasicAuthorization("alice", "secret"))
	resp, err = cc.Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "welcome alice", string(resp.Body))

	// the user stays on the session
	req, err = NewRequest(http.MethodGet, st.URL("/private/again"), nil)
	require.NoError(t, err)
	resp, err = cc.Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "welcome alice", string(resp.Body))

	// but not on a new connection
	resp, err = st.client().Get(ctx, st.URL("/private"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = st.client().Get(ctx, st.URL("/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func Test_AuthRegistry_GateDigest(t *testing.T) {
	defer leaktest.Check(t)()
	st := newAuthTester(t)
	defer st.Close()

	cc := st.rawConn()
	defer cc.Close()
	ctx := context.Background()

	req, err := NewRequest(http.MethodPost, st.URL("/private/doc"), []byte("data"))
	require.NoError(t, err)
	resp, err := cc.Do(ctx, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var challenge string
	for _, c := range resp.Header.Values("WWW-Authenticate") {
		if strings.HasPrefix(c, "Digest ") {
			challenge = c
		}
	}
	require.NotEmpty(t, challenge)

	req, err = NewRequest(http.MethodPost, st.URL("/private/doc"), []byte("data"))
	require.NoError(t, err)
	req.Header.SetType(HeaderAuthorization, digestAuthorization(challenge, "alice", "secret", "POST", "/private/doc"))
	resp, err = cc.Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "welcome alice", string(resp.Body))
}

func Test_AuthRegistry_GatePreRoute(t *testing.T) {
	defer leaktest.Check(t)()
	st := newSrvTester(t, func(st *srvTester) {
		st.srv.PreRoute = NewAuthRegistry(BasicAuth{}).Gate("test", testCreds)
	})
	defer st.Close()
	ctx := context.Background()

	resp, err := st.client().Get(ctx, st.URL("/"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, []string{`Basic realm="test"`}, resp.Header.Values("WWW-Authenticate"))

	req, err := NewRequest(http.MethodGet, st.URL("/"), nil)
	require.NoError(t, err)
	req.Header.SetType(HeaderAuthorization, BasicAuthorization("alice", "secret"))
	resp, err = st.client().Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(resp.Body))
}
