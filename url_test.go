package webcpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_URL_ParseAbsolute(t *testing.T) {
	u, err := ParseURL("https://bob@example.com:8443/a%20b/c?x=1&y=two+words#frag", true)
	require.NoError(t, err)
	assert.Equal(t, SchemeHTTPS, u.Scheme)
	assert.Equal(t, "bob", u.User)
	assert.Equal(t, "example.com", u.Host)
	assert.Equal(t, 8443, u.Port)
	assert.Equal(t, "/a b/c", u.Path)
	assert.Equal(t, map[string]string{"x": "1", "y": "two words"}, u.Query)
	assert.Equal(t, "frag", u.Fragment)
	assert.True(t, u.Usable())
	assert.Equal(t, "example.com:8443", u.HostPort())
	assert.Equal(t, "/a%20b/c?x=1&y=two+words", u.RequestURI())
}

func Test_URL_DefaultPorts(t *testing.T) {
	for text, port := range map[string]int{
		"http://h/":  80,
		"https://h/": 443,
		"ws://h/":    80,
		"wss://h":    443,
	} {
		u, err := ParseURL(text, true)
		require.NoError(t, err, text)
		assert.Equal(t, port, u.Port, text)
		assert.Equal(t, "h", u.HostHeader())
	}
	u, err := ParseURL("wss://h", true)
	require.NoError(t, err)
	assert.Equal(t, "/", u.Path)
}

func Test_URL_ParseOrigin(t *testing.T) {
	var u URL
	require.NoError(t, u.Parse("/path/to?q", false))
	assert.Equal(t, SchemeUndefined, u.Scheme)
	assert.Equal(t, "/path/to", u.Path)
	assert.Equal(t, map[string]string{"q": ""}, u.Query)
	assert.True(t, u.Initialized())
	assert.False(t, u.Usable())
}

func Test_URL_IPv6(t *testing.T) {
	u, err := ParseURL("http://[::1]:9000/x", true)
	require.NoError(t, err)
	assert.Equal(t, "[::1]", u.Host)
	assert.Equal(t, 9000, u.Port)
}

func Test_URL_Errors(t *testing.T) {
	for _, text := range []string{
		"example.com/x",
		"ftp://host/",
		"http://host:99999/",
		"http://host:abc/",
		"http:///nohost",
		"http://[::1/",
	} {
		u, err := ParseURL(text, true)
		assert.Error(t, err, text)
		assert.True(t, IsMalformed(err), text)
		assert.Nil(t, u)
	}
	var u URL
	assert.Error(t, u.Parse("relative", false))
	assert.False(t, u.Initialized())
}

func Test_URL_String(t *testing.T) {
	u, err := ParseURL("HTTP://example.com:80/a b?b=2&a=1#f", true)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a%20b?a=1&b=2#f", u.String())
}

func Test_URL_Query(t *testing.T) {
	q := ParseQuery("a=1&a=2&b&&c=%41+B")
	assert.Equal(t, map[string]string{"a": "1", "b": "", "c": "A B"}, q)
	assert.Equal(t, "a=1&b=&c=A+B", EncodeQuery(q))
	assert.Equal(t, "", EncodeQuery(nil))
}
