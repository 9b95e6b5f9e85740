package webcpp

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Response is an HTTP response, either built by a handler or parsed
// from the wire by a Client.
type Response struct {
	message
	Proto       string
	StatusCode  int
	Reason      string // reason phrase; empty means the standard text for StatusCode
	HeadRequest bool   // the response answers a HEAD request and carries no body bytes
	closeAfter  bool
}

// NewResponse returns a 200 OK response.
func NewResponse() *Response {
	return &Response{
		Proto:      protoHTTP11,
		StatusCode: http.StatusOK,
	}
}

func (r *Response) String() string {
	return fmt.Sprintf("[Response %s %d %s %s]", r.Proto, r.StatusCode, r.StatusText(), r.phase)
}

// StatusText returns the reason phrase that is sent for the response.
func (r *Response) StatusText() string {
	if r.Reason != "" {
		return r.Reason
	}
	return http.StatusText(r.StatusCode)
}

// bodyless returns true for status codes that never carry a body.
func bodyless(code int) bool {
	return (code >= 100 && code < 200) || code == http.StatusNoContent || code == http.StatusNotModified
}

// Parse parses as much of the response as buf allows. It follows the
// same re-entrant rules as Request.Parse.
func (r *Response) Parse(buf []byte) (bool, error) {
	if r.phase == phaseStartLine {
		end, err := r.findStartLine(buf)
		if err != nil {
			return r.fail(err)
		}
		if end == NotFound {
			return false, nil
		}
		if err = r.parseStatusLine(buf, end); err != nil {
			return r.fail(err)
		}
		r.startLineLen = end
		r.phase = phaseHeader
	}
	done, err := r.parseRest(buf, !r.HeadRequest && !bodyless(r.StatusCode))
	if err != nil {
		return r.fail(err)
	}
	return done, nil
}

func (r *Response) parseStatusLine(buf []byte, end int) error {
	sp1 := SearchPosition(buf, []byte{' '}, 0, end)
	if sp1 == NotFound {
		return errors.Wrapf(ErrBadStartLine, "%q", buf[:end])
	}
	proto := string(buf[:sp1])
	if proto != protoHTTP11 && proto != protoHTTP10 {
		return errors.Wrapf(ErrBadVersion, "%q", proto)
	}
	sp2 := SearchPosition(buf, []byte{' '}, sp1+1, end)
	codeEnd := sp2
	if sp2 == NotFound {
		codeEnd = end
	}
	code, err := strconv.Atoi(string(buf[sp1+1 : codeEnd]))
	if err != nil || codeEnd-sp1-1 != 3 || code < 100 || code > 599 {
		return errors.Wrapf(ErrBadStatus, "%q", buf[sp1+1:codeEnd])
	}
	r.Proto = proto
	r.StatusCode = code
	r.Reason = ""
	if sp2 != NotFound {
		r.Reason = string(buf[sp2+1 : end])
	}
	return nil
}

// Reset clears the response so it can be reused.
func (r *Response) Reset() {
	r.message.reset()
	r.Proto = protoHTTP11
	r.StatusCode = http.StatusOK
	r.Reason = ""
	r.closeAfter = false
}

// SetStatus sets the status code and clears any custom reason phrase.
func (r *Response) SetStatus(code int) *Response {
	r.StatusCode = code
	r.Reason = ""
	return r
}

// SetHeader sets a header field, see Header.Set.
func (r *Response) SetHeader(name, value string) *Response {
	r.Header.Set(name, value)
	return r
}

// SetBody replaces the body and sets its content type.
func (r *Response) SetBody(contentType string, body []byte) *Response {
	r.Body = append(r.Body[:0], body...)
	if contentType != "" {
		r.Header.SetType(HeaderContentType, contentType)
	}
	return r
}

// SetText sets a text/plain body.
func (r *Response) SetText(text string) *Response {
	return r.SetBody("text/plain; charset=utf-8", []byte(text))
}

// SetJSON encodes v as the body with an application/json content type.
func (r *Response) SetJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.WithStack(err)
	}
	r.SetBody("application/json", b)
	return nil
}

// SetMultipart encodes values as a multipart/form-data body with a
// freshly generated boundary.
func (r *Response) SetMultipart(values []BodyValue) error {
	contentType, b, err := BuildMultipart(values)
	if err != nil {
		return err
	}
	r.SetBody(contentType, b)
	return nil
}

// Write appends p to the body.
func (r *Response) Write(p []byte) (int, error) {
	r.Body = append(r.Body, p...)
	return len(p), nil
}

// WriteString appends s to the body.
func (r *Response) WriteString(s string) (int, error) {
	r.Body = append(r.Body, s...)
	return len(s), nil
}

// Error replaces the response with a plain text error for code.
func (r *Response) Error(code int, text string) *Response {
	r.SetStatus(code)
	if text == "" {
		text = http.StatusText(code)
	}
	return r.SetText(text + "\n")
}

// CloseAfter marks the connection to be closed once the response is sent.
func (r *Response) CloseAfter() {
	r.closeAfter = true
	r.Header.SetType(HeaderConnection, "close")
}

func (r *Response) prepare() {
	if r.Proto == "" {
		r.Proto = protoHTTP11
	}
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if !r.Header.Has("Server") {
		r.Header.SetType(HeaderServer, DefaultServerName)
	}
	if !r.Header.Has("Date") {
		r.Header.SetType(HeaderDate, time.Now().UTC().Format(http.TimeFormat))
	}
	if !bodyless(r.StatusCode) {
		r.Header.SetType(HeaderContentLength, strconv.Itoa(len(r.Body)))
		if len(r.Body) > 0 && !r.Header.Has("Content-Type") {
			r.Header.SetType(HeaderContentType, "application/octet-stream")
		}
	}
}

// Build injects missing headers and returns the wire form of the response.
// A HEAD response keeps its Content-Length but omits the body bytes.
func (r *Response) Build() []byte {
	r.prepare()
	reason := r.StatusText()
	buf := make([]byte, 0, len(r.Proto)+len(reason)+8+64*len(r.Header.Fields)+len(r.Body))
	buf = append(buf, r.Proto...)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(r.StatusCode), 10)
	buf = append(buf, ' ')
	buf = append(buf, reason...)
	buf = append(buf, crlf...)
	buf = r.Header.AppendTo(buf)
	buf = append(buf, crlf...)
	if !r.HeadRequest && !bodyless(r.StatusCode) {
		buf = append(buf, r.Body...)
	}
	return buf
}

// Send builds the response and writes it to the connection id of t.
func (r *Response) Send(t Transport, id ConnID) error {
	if !t.Write(id, r.Build()) {
		return errors.WithStack(ErrWriteFail)
	}
	return nil
}
