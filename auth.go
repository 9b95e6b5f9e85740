package webcpp

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// CredentialFunc returns the password of user, or false if there is no
// such user.
type CredentialFunc func(user string) (password string, ok bool)

// AuthScheme is one HTTP authentication scheme.
type AuthScheme interface {
	// Name returns the scheme token used in Authorization headers.
	Name() string
	// Challenge returns the WWW-Authenticate value for realm.
	Challenge(realm string) string
	// Authenticate checks the credentials in req, which carry params
	// after the scheme token, and returns the user name on success.
	Authenticate(req *Request, params string, realm string, creds CredentialFunc) (string, bool)
}

// AuthRegistry holds the authentication schemes a Server accepts. It is
// built by the caller and shared only with the servers it is given to.
type AuthRegistry struct {
	mu      sync.RWMutex
	schemes []AuthScheme
}

// NewAuthRegistry returns a registry holding schemes.
func NewAuthRegistry(schemes ...AuthScheme) *AuthRegistry {
	r := &AuthRegistry{}
	for _, s := range schemes {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any scheme with the same name.
func (r *AuthRegistry) Register(s AuthScheme) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, old := range r.schemes {
		if strings.EqualFold(old.Name(), s.Name()) {
			r.schemes[i] = s
			return
		}
	}
	r.schemes = append(r.schemes, s)
}

// Get returns the scheme called name, or nil.
func (r *AuthRegistry) Get(name string) AuthScheme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.schemes {
		if strings.EqualFold(s.Name(), name) {
			return s
		}
	}
	return nil
}

// Authenticate checks the Authorization header of req against the
// registered schemes.
func (r *AuthRegistry) Authenticate(req *Request, realm string, creds CredentialFunc) (string, bool) {
	auth, ok := req.Header.GetType(HeaderAuthorization)
	if !ok {
		return "", false
	}
	name, params := auth, ""
	if idx := strings.IndexByte(auth, ' '); idx >= 0 {
		name, params = auth[:idx], strings.TrimSpace(auth[idx+1:])
	}
	if s := r.Get(name); s != nil {
		return s.Authenticate(req, params, realm, creds)
	}
	return "", false
}

// Gate returns a Handler that answers 401 with a challenge for every
// registered scheme unless the request is authenticated. It works as
// Server.PreRoute or registered as a route ahead of the routes it
// protects; either way it returns false to let the request through. The user
// is stored on the session, so later requests on the same connection
// pass without credentials.
func (r *AuthRegistry) Gate(realm string, creds CredentialFunc) Handler {
	return HandlerFunc(func(req *Request, resp *Response) bool {
		s := req.Session()
		if s != nil && s.User() != "" {
			return false
		}
		if user, ok := r.Authenticate(req, realm, creds); ok {
			if s != nil {
				s.SetUser(user)
			}
			return false
		}
		resp.Error(http.StatusUnauthorized, "")
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, scheme := range r.schemes {
			resp.Header.Add(HeaderWWWAuthenticate.String(), scheme.Challenge(realm))
		}
		return true
	})
}

// BasicAuth is the RFC 7617 Basic scheme.
type BasicAuth struct{}

// Name implements AuthScheme.
func (BasicAuth) Name() string { return "Basic" }

// Challenge implements AuthScheme.
func (BasicAuth) Challenge(realm string) string {
	return `Basic realm="` + realm + `"`
}

// Authenticate implements AuthScheme.
func (BasicAuth) Authenticate(req *Request, params string, realm string, creds CredentialFunc) (string, bool) {
	b, err := base64.StdEncoding.DecodeString(params)
	if err != nil {
		return "", false
	}
	user, pass, ok := strings.Cut(string(b), ":")
	if !ok {
		return "", false
	}
	want, ok := creds(user)
	if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(want)) != 1 {
		return "", false
	}
	return user, true
}

// BasicAuthorization returns the Authorization value for user and pass.
func BasicAuthorization(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// DigestAuth is the RFC 2617 Digest scheme with MD5 and qop=auth.
// Nonces it hands out are valid for NonceLifetime.
type DigestAuth struct {
	NonceLifetime time.Duration
	nonces        *xsync.MapOf[string, time.Time]
	once          sync.Once
}

// NewDigestAuth returns a DigestAuth whose nonces live for lifetime.
func NewDigestAuth(lifetime time.Duration) *DigestAuth {
	return &DigestAuth{NonceLifetime: lifetime}
}

func (d *DigestAuth) init() {
	d.once.Do(func() {
		d.nonces = xsync.NewMapOf[string, time.Time]()
		if d.NonceLifetime <= 0 {
			d.NonceLifetime = 5 * time.Minute
		}
	})
}

// Name implements AuthScheme.
func (d *DigestAuth) Name() string { return "Digest" }

// Challenge implements AuthScheme. Each challenge carries a new nonce.
func (d *DigestAuth) Challenge(realm string) string {
	d.init()
	now := time.Now()
	d.nonces.Range(func(nonce string, expires time.Time) bool {
		if expires.Before(now) {
			d.nonces.Delete(nonce)
		}
		return true
	})
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	nonce := hex.EncodeToString(b[:])
	d.nonces.Store(nonce, now.Add(d.NonceLifetime))
	return `Digest realm="` + realm + `", qop="auth", algorithm=MD5, nonce="` + nonce + `"`
}

// Authenticate implements AuthScheme.
func (d *DigestAuth) Authenticate(req *Request, params string, realm string, creds CredentialFunc) (string, bool) {
	d.init()
	p := ParseAuthParams(params)
	user, nonce := p["username"], p["nonce"]
	if p["realm"] != realm || user == "" {
		return "", false
	}
	expires, ok := d.nonces.Load(nonce)
	if !ok || expires.Before(time.Now()) {
		return "", false
	}
	pass, ok := creds(user)
	if !ok {
		return "", false
	}
	want := DigestResponse(user, realm, pass, req.Method, p["uri"], nonce, p["nc"], p["cnonce"], p["qop"])
	if subtle.ConstantTimeCompare([]byte(p["response"]), []byte(want)) != 1 {
		return "", false
	}
	return user, true
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DigestResponse computes the RFC 2617 response value. If qop is empty
// the RFC 2069 form is used.
func DigestResponse(user, realm, pass, method, uri, nonce, nc, cnonce, qop string) string {
	ha1 := md5hex(user + ":" + realm + ":" + pass)
	ha2 := md5hex(method + ":" + uri)
	if qop == "" {
		return md5hex(ha1 + ":" + nonce + ":" + ha2)
	}
	return md5hex(ha1 + ":" + nonce + ":" + nc + ":" + cnonce + ":" + qop + ":" + ha2)
}

// ParseAuthParams splits a comma separated list of key=value pairs,
// removing quotes from quoted values.
func ParseAuthParams(s string) map[string]string {
	params := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t,")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = strings.TrimLeft(s[eq+1:], " \t")
		var value string
		if strings.HasPrefix(s, `"`) {
			var sb strings.Builder
			i := 1
			for ; i < len(s) && s[i] != '"'; i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				sb.WriteByte(s[i])
			}
			value = sb.String()
			if i < len(s) {
				i++
			}
			s = s[i:]
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				end = len(s)
			}
			value = strings.TrimSpace(s[:end])
			s = s[end:]
		}
		params[key] = value
	}
	return params
}
