package webcpp

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scheme enumerates the URL schemes the engine can do I/O with.
type Scheme int

const (
	// SchemeUndefined marks a URL that can not be used for I/O.
	SchemeUndefined Scheme = iota
	SchemeHTTP
	SchemeHTTPS
	SchemeWS
	SchemeWSS
)

var schemeTexts = map[Scheme]string{
	SchemeUndefined: "",
	SchemeHTTP:      "http",
	SchemeHTTPS:     "https",
	SchemeWS:        "ws",
	SchemeWSS:       "wss",
}

func (s Scheme) String() string {
	return schemeTexts[s]
}

// DefaultPort returns the port used when a URL does not name one.
func (s Scheme) DefaultPort() int {
	switch s {
	case SchemeHTTPS, SchemeWSS:
		return 443
	case SchemeHTTP, SchemeWS:
		return 80
	}
	return 0
}

// Secure returns true for schemes that run over TLS.
func (s Scheme) Secure() bool {
	return s == SchemeHTTPS || s == SchemeWSS
}

func lookupScheme(text string) Scheme {
	for s, name := range schemeTexts {
		if s != SchemeUndefined && strings.EqualFold(name, text) {
			return s
		}
	}
	return SchemeUndefined
}

// URL is a decomposed absolute or origin-form URL.
type URL struct {
	Scheme   Scheme
	User     string
	Host     string
	Port     int
	Path     string
	Query    map[string]string
	Fragment string
	parsed   bool
}

// ParseURL returns a new URL parsed from text.
func ParseURL(text string, isAbsolute bool) (u *URL, err error) {
	u = &URL{}
	if err = u.Parse(text, isAbsolute); err != nil {
		u = nil
	}
	return
}

// Parse decomposes text into u. If isAbsolute is false, text is expected
// in origin form (path, query and fragment only). On failure u is left
// uninitialized.
func (u *URL) Parse(text string, isAbsolute bool) error {
	var v URL
	rest := text
	if isAbsolute {
		idx := strings.IndexByte(rest, ':')
		if idx < 1 {
			return errors.Wrapf(ErrBadURL, "no scheme in %q", text)
		}
		if v.Scheme = lookupScheme(rest[:idx]); v.Scheme == SchemeUndefined {
			return errors.Wrapf(ErrBadURL, "unknown scheme %q", rest[:idx])
		}
		rest = rest[idx+1:]
		v.Port = v.Scheme.DefaultPort()
		if strings.HasPrefix(rest, "//") {
			rest = rest[2:]
			authEnd := strings.IndexAny(rest, "/?#")
			if authEnd < 0 {
				authEnd = len(rest)
			}
			if err := v.parseAuthority(rest[:authEnd]); err != nil {
				return errors.Wrapf(err, "in %q", text)
			}
			rest = rest[authEnd:]
		}
	}

	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		v.Fragment = unescape(rest[idx+1:], false)
		rest = rest[:idx]
	}
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		v.Query = ParseQuery(rest[idx+1:])
		rest = rest[:idx]
	}
	v.Path = unescape(rest, false)
	if !strings.HasPrefix(v.Path, "/") {
		if !isAbsolute && v.Path != "*" {
			return errors.Wrapf(ErrBadURL, "path %q is not absolute", text)
		}
		if v.Path != "*" {
			v.Path = "/" + v.Path
		}
	}
	v.parsed = true
	*u = v
	return nil
}

func (u *URL) parseAuthority(auth string) error {
	if idx := strings.LastIndexByte(auth, '@'); idx >= 0 {
		u.User = unescape(auth[:idx], false)
		auth = auth[idx+1:]
	}
	host := auth
	if strings.HasPrefix(auth, "[") {
		end := strings.IndexByte(auth, ']')
		if end < 0 {
			return errors.Wrap(ErrBadURL, "unterminated IPv6 literal")
		}
		host = auth[:end+1]
		auth = auth[end+1:]
		if auth != "" && auth[0] != ':' {
			return errors.Wrap(ErrBadURL, "garbage after IPv6 literal")
		}
	} else if idx := strings.LastIndexByte(auth, ':'); idx >= 0 {
		host = auth[:idx]
		auth = auth[idx:]
	} else {
		auth = ""
	}
	if strings.HasPrefix(auth, ":") && len(auth) > 1 {
		port, err := strconv.Atoi(auth[1:])
		if err != nil || port < 1 || port > 65535 {
			return errors.Wrapf(ErrBadURL, "bad port %q", auth[1:])
		}
		u.Port = port
	}
	if host == "" {
		return errors.Wrap(ErrBadURL, "empty host")
	}
	u.Host = host
	return nil
}

// Initialized returns true once Parse has succeeded.
func (u *URL) Initialized() bool {
	return u != nil && u.parsed
}

// Usable returns true if the URL names a scheme and host to do I/O with.
func (u *URL) Usable() bool {
	return u.Initialized() && u.Scheme != SchemeUndefined && u.Host != ""
}

// HostPort returns host:port, suitable for dialing.
func (u *URL) HostPort() string {
	return u.Host + ":" + strconv.Itoa(u.Port)
}

// HostHeader returns the value for a Host header, omitting a default port.
func (u *URL) HostHeader() string {
	if u.Port == 0 || u.Port == u.Scheme.DefaultPort() {
		return u.Host
	}
	return u.HostPort()
}

// RequestURI returns the path and query, as used in a request line.
func (u *URL) RequestURI() string {
	path := escapePath(u.Path)
	if path == "" {
		path = "/"
	}
	if q := u.EncodeQuery(); q != "" {
		return path + "?" + q
	}
	return path
}

// EncodeQuery returns the query map encoded with keys in sorted order.
func (u *URL) EncodeQuery() string {
	return EncodeQuery(u.Query)
}

// String returns the normalized form of the URL.
func (u URL) String() string {
	var sb strings.Builder
	if u.Scheme != SchemeUndefined {
		sb.WriteString(u.Scheme.String())
		sb.WriteString("://")
		if u.User != "" {
			sb.WriteString(url.PathEscape(u.User))
			sb.WriteByte('@')
		}
		sb.WriteString(u.HostHeader())
	}
	if !strings.HasPrefix(u.Path, "/") && u.Path != "*" {
		sb.WriteByte('/')
	}
	sb.WriteString(escapePath(u.Path))
	if q := u.EncodeQuery(); q != "" {
		sb.WriteByte('?')
		sb.WriteString(q)
	}
	if u.Fragment != "" {
		sb.WriteByte('#')
		sb.WriteString(url.PathEscape(u.Fragment))
	}
	return sb.String()
}

// ParseQuery splits a query component on '&' and '=', percent-decoding
// both sides. A key without '=' is stored with an empty value. The first
// occurrence of a key wins.
func ParseQuery(text string) map[string]string {
	values := make(map[string]string)
	for _, pair := range strings.Split(text, "&") {
		if pair == "" {
			continue
		}
		var key, value string
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			key, value = pair[:idx], pair[idx+1:]
		} else {
			key = pair
		}
		key = unescape(key, true)
		if _, ok := values[key]; !ok {
			values[key] = unescape(value, true)
		}
	}
	return values
}

// EncodeQuery encodes values with the keys in sorted order.
func EncodeQuery(values map[string]string) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(values[k]))
	}
	return sb.String()
}

// unescape percent-decodes s, returning it unchanged if it is not
// validly encoded.
func unescape(s string, query bool) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var out string
	var err error
	if query {
		out, err = url.QueryUnescape(s)
	} else {
		out, err = url.PathUnescape(s)
	}
	if err != nil {
		return s
	}
	return out
}

func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}
