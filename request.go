package webcpp

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var knownMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodDelete:  {},
	http.MethodConnect: {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
	http.MethodPatch:   {},
}

const (
	protoHTTP10 = "HTTP/1.0"
	protoHTTP11 = "HTTP/1.1"
)

// Request is an HTTP request, either parsed from the wire or built for sending.
type Request struct {
	message
	Method      string
	Target      string // request-target as it appeared on the wire
	URL         URL
	Proto       string
	Params      map[string]string // path parameters bound by the route matcher
	RemoteAddr  string
	ConnID      ConnID
	BodyOptions BodyOptions
	session     *Session // non-owning
	form        *Body
}

// NewRequest returns a Request for sending to the absolute URL rawurl.
func NewRequest(method, rawurl string, body []byte) (*Request, error) {
	if _, ok := knownMethods[method]; !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "%q", method)
	}
	req := &Request{
		Method: method,
		Proto:  protoHTTP11,
		Params: make(map[string]string),
	}
	if err := req.URL.Parse(rawurl, true); err != nil {
		return nil, err
	}
	req.Target = req.URL.RequestURI()
	req.Body = body
	return req, nil
}

func (r *Request) String() string {
	return fmt.Sprintf("[Request %v %s %s %s %s]", r.ConnID, r.Method, r.Target, r.Proto, r.phase)
}

// Parse parses as much of the request as buf allows. It may be called
// repeatedly with a growing buf holding the same leading bytes; phases
// already parsed are never parsed again. It returns true once the whole
// request, including its body, is present.
func (r *Request) Parse(buf []byte) (bool, error) {
	if r.phase == phaseStartLine {
		end, err := r.findStartLine(buf)
		if err != nil {
			return r.fail(err)
		}
		if end == NotFound {
			return false, nil
		}
		if err = r.parseStartLine(buf, end); err != nil {
			return r.fail(err)
		}
		r.startLineLen = end
		r.phase = phaseHeader
	}
	done, err := r.parseRest(buf, true)
	if err != nil {
		return r.fail(err)
	}
	return done, nil
}

func (r *Request) parseStartLine(buf []byte, end int) error {
	parts := Split(buf, []byte{' '}, 0, end)
	if len(parts) != 3 || parts[0].Empty() || parts[1].Empty() {
		return errors.Wrapf(ErrBadStartLine, "%q", buf[:end])
	}
	method := parts[0].Text(buf)
	if _, ok := knownMethods[method]; !ok {
		return errors.Wrapf(ErrUnknownMethod, "%q", method)
	}
	proto := parts[2].Text(buf)
	if proto != protoHTTP11 && proto != protoHTTP10 {
		return errors.Wrapf(ErrBadVersion, "%q", proto)
	}
	target := parts[1].Text(buf)
	absolute := !strings.HasPrefix(target, "/") && target != "*"
	if err := r.URL.Parse(target, absolute); err != nil {
		return err
	}
	r.Method = method
	r.Target = target
	r.Proto = proto
	return nil
}

// Reset clears the request so it can parse a new message.
func (r *Request) Reset() {
	r.message.reset()
	r.Method = ""
	r.Target = ""
	r.URL = URL{}
	r.Proto = ""
	r.Params = nil
	r.closeForm()
}

// Param returns the path parameter bound to name by the route matcher.
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Query returns the query parameter name.
func (r *Request) Query(name string) string {
	return r.URL.Query[name]
}

// Path returns the decoded request path.
func (r *Request) Path() string {
	return r.URL.Path
}

// Session returns the session the request arrived on, or nil for
// requests that were not received by a Server.
func (r *Request) Session() *Session {
	return r.session
}

// KeepAlive returns true if the connection may be reused after the response.
func (r *Request) KeepAlive() bool {
	if r.Header.HasToken(HeaderConnection, "close") {
		return false
	}
	if r.Proto == protoHTTP10 {
		return r.Header.HasToken(HeaderConnection, "keep-alive")
	}
	return true
}

// IsWebSocketUpgrade returns true if the request asks to switch to WebSocket.
func (r *Request) IsWebSocketUpgrade() bool {
	return r.Method == http.MethodGet &&
		r.Header.HasToken(HeaderConnection, "upgrade") &&
		r.Header.HasToken(HeaderUpgrade, "websocket")
}

// ContentType returns the media type of the body, without parameters.
func (r *Request) ContentType() string {
	ct, _ := r.Header.GetType(HeaderContentType)
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// Form parses the body according to its Content-Type. The result is
// cached; spooled files are removed when the request is reset or
// Close is called.
func (r *Request) Form() (*Body, error) {
	if r.form == nil {
		ct, _ := r.Header.GetType(HeaderContentType)
		body, err := ParseBody(ct, r.Body, r.BodyOptions)
		if err != nil {
			return nil, err
		}
		r.form = body
	}
	return r.form, nil
}

// FormValue returns the in-memory value of the named body field.
func (r *Request) FormValue(name string) string {
	if form, err := r.Form(); err == nil {
		if v := form.Get(name); v != nil {
			return string(v.Data)
		}
	}
	return ""
}

func (r *Request) closeForm() (err error) {
	if r.form != nil {
		err = r.form.Close()
		r.form = nil
	}
	return
}

// Close releases temporary files created while parsing the body.
func (r *Request) Close() error {
	return r.closeForm()
}

// prepare injects the headers a sendable request must carry. It runs
// before serialization so that Content-Length matches the body sent.
func (r *Request) prepare() {
	if r.Proto == "" {
		r.Proto = protoHTTP11
	}
	if !r.Header.Has("Host") && r.URL.Host != "" {
		r.Header.SetType(HeaderHost, r.URL.HostHeader())
	}
	if !r.Header.Has("User-Agent") {
		r.Header.SetType(HeaderUserAgent, DefaultUserAgent)
	}
	if len(r.Body) > 0 {
		r.Header.SetType(HeaderContentLength, strconv.Itoa(len(r.Body)))
		if !r.Header.Has("Content-Type") {
			r.Header.SetType(HeaderContentType, "application/octet-stream")
		}
	}
}

// Build injects missing headers and returns the wire form of the request.
func (r *Request) Build() []byte {
	r.prepare()
	return r.AppendTo(nil)
}

// AppendTo appends the wire form of the request to dst as it stands,
// without injecting any headers.
func (r *Request) AppendTo(dst []byte) []byte {
	target := r.Target
	if target == "" {
		target = r.URL.RequestURI()
	}
	if dst == nil {
		dst = make([]byte, 0, len(r.Method)+len(target)+len(r.Proto)+4+64*len(r.Header.Fields)+len(r.Body))
	}
	dst = append(dst, r.Method...)
	dst = append(dst, ' ')
	dst = append(dst, target...)
	dst = append(dst, ' ')
	dst = append(dst, r.Proto...)
	dst = append(dst, crlf...)
	dst = r.Header.AppendTo(dst)
	dst = append(dst, crlf...)
	return append(dst, r.Body...)
}

// Send builds the request and writes it to the connection id of t.
func (r *Request) Send(t Transport, id ConnID) error {
	if !t.Write(id, r.Build()) {
		return errors.WithStack(ErrWriteFail)
	}
	return nil
}
