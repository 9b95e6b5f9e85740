package webcpp

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

// HeaderType classifies well-known header names. Classification is
// case-insensitive; names are stored as received.
type HeaderType int

const (
	HeaderUnknown HeaderType = iota
	HeaderAccept
	HeaderAuthorization
	HeaderConnection
	HeaderContentDisposition
	HeaderContentLength
	HeaderContentType
	HeaderCookie
	HeaderDate
	HeaderHost
	HeaderKeepAlive
	HeaderLocation
	HeaderOrigin
	HeaderSecWebSocketAccept
	HeaderSecWebSocketKey
	HeaderSecWebSocketProtocol
	HeaderSecWebSocketVersion
	HeaderServer
	HeaderSetCookie
	HeaderTransferEncoding
	HeaderUpgrade
	HeaderUserAgent
	HeaderWWWAuthenticate
)

var headerNames = map[HeaderType]string{
	HeaderAccept:               "Accept",
	HeaderAuthorization:        "Authorization",
	HeaderConnection:           "Connection",
	HeaderContentDisposition:   "Content-Disposition",
	HeaderContentLength:        "Content-Length",
	HeaderContentType:          "Content-Type",
	HeaderCookie:               "Cookie",
	HeaderDate:                 "Date",
	HeaderHost:                 "Host",
	HeaderKeepAlive:            "Keep-Alive",
	HeaderLocation:             "Location",
	HeaderOrigin:               "Origin",
	HeaderSecWebSocketAccept:   "Sec-WebSocket-Accept",
	HeaderSecWebSocketKey:      "Sec-WebSocket-Key",
	HeaderSecWebSocketProtocol: "Sec-WebSocket-Protocol",
	HeaderSecWebSocketVersion:  "Sec-WebSocket-Version",
	HeaderServer:               "Server",
	HeaderSetCookie:            "Set-Cookie",
	HeaderTransferEncoding:     "Transfer-Encoding",
	HeaderUpgrade:              "Upgrade",
	HeaderUserAgent:            "User-Agent",
	HeaderWWWAuthenticate:      "WWW-Authenticate",
}

var headerTypes = func() map[string]HeaderType {
	m := make(map[string]HeaderType, len(headerNames))
	for t, name := range headerNames {
		m[strings.ToLower(name)] = t
	}
	return m
}()

// HeaderTypeOf returns the HeaderType for name, or HeaderUnknown.
func HeaderTypeOf(name string) HeaderType {
	return headerTypes[strings.ToLower(name)]
}

func (t HeaderType) String() string {
	if name, ok := headerNames[t]; ok {
		return name
	}
	return "Unknown"
}

// HeaderField is one header line.
type HeaderField struct {
	Type  HeaderType
	Name  string
	Value string
}

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// Header is an ordered list of header fields.
//
// Once Parse has reported the block complete, Size and BodySize are
// frozen until Clear is called.
type Header struct {
	Fields   []HeaderField
	complete bool
	size     int // bytes of header lines, excluding the terminating blank line
	termSize int // bytes of the terminating CRLF sequence
	bodySize int64
}

// Parse parses the header block starting at offset start in buf, where
// start is the first byte after the start line's CRLF. It returns false
// with a nil error if the block is not yet complete. maxSize limits how
// many bytes may be scanned without finding the end of the block; zero
// means no limit.
func (h *Header) Parse(buf []byte, start int, maxSize int) (bool, error) {
	if h.complete {
		return true, nil
	}
	if len(buf)-start < 2 {
		return false, nil
	}
	var end int
	if buf[start] == '\r' && buf[start+1] == '\n' {
		end = start
		h.termSize = 2
	} else {
		end = SearchPosition(buf, crlfcrlf, start, len(buf))
		if end == NotFound {
			if maxSize > 0 && len(buf)-start > maxSize {
				return false, errors.WithStack(ErrHeaderTooLarge)
			}
			return false, nil
		}
		h.termSize = 4
	}
	if maxSize > 0 && end-start > maxSize {
		return false, errors.WithStack(ErrHeaderTooLarge)
	}
	fields := h.Fields[:0]
	if end > start {
		for _, line := range Split(buf, crlf, start, end) {
			colon := SearchPosition(buf, []byte{':'}, line.Start, line.End)
			if colon == NotFound {
				return false, errors.Wrapf(ErrBadHeader, "%q", line.Text(buf))
			}
			name := ByteRange{line.Start, colon}.TrimSpace(buf).Text(buf)
			value := ByteRange{colon + 1, line.End}.TrimSpace(buf).Text(buf)
			if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
				return false, errors.Wrapf(ErrBadHeader, "%q", line.Text(buf))
			}
			fields = append(fields, HeaderField{Type: HeaderTypeOf(name), Name: name, Value: value})
		}
	}
	h.Fields = fields
	h.size = end - start
	h.complete = true
	h.bodySize = h.contentLength()
	return true, nil
}

func (h *Header) contentLength() int64 {
	if v, ok := h.GetType(HeaderContentLength); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// Complete returns true once Parse has found the end of the block.
func (h *Header) Complete() bool {
	return h.complete
}

// Size returns the byte length of the header lines, excluding the
// terminating blank line.
func (h *Header) Size() int {
	return h.size
}

// Len returns the byte length of the whole block including its terminator.
func (h *Header) Len() int {
	return h.size + h.termSize
}

// BodySize returns the declared body length. It is derived from
// Content-Length and is zero if that is absent or not numeric.
func (h *Header) BodySize() int64 {
	if h.complete {
		return h.bodySize
	}
	return h.contentLength()
}

// Chunked returns true if the message declares chunked transfer encoding.
func (h *Header) Chunked() bool {
	return h.HasToken(HeaderTransferEncoding, "chunked")
}

// Clear empties the header and makes it parseable again.
func (h *Header) Clear() {
	h.Fields = h.Fields[:0]
	h.complete = false
	h.size = 0
	h.termSize = 0
	h.bodySize = 0
}

func (h *Header) index(name string) int {
	for i := range h.Fields {
		if strings.EqualFold(h.Fields[i].Name, name) {
			return i
		}
	}
	return -1
}

// Get returns the value of the first field named name.
func (h *Header) Get(name string) string {
	if i := h.index(name); i >= 0 {
		return h.Fields[i].Value
	}
	return ""
}

// Lookup is like Get but also reports if the field was present.
func (h *Header) Lookup(name string) (string, bool) {
	if i := h.index(name); i >= 0 {
		return h.Fields[i].Value, true
	}
	return "", false
}

// GetType returns the value of the first field of type t.
func (h *Header) GetType(t HeaderType) (string, bool) {
	for i := range h.Fields {
		if h.Fields[i].Type == t {
			return h.Fields[i].Value, true
		}
	}
	return "", false
}

// Values returns the values of all fields named name, in order.
func (h *Header) Values(name string) (values []string) {
	for i := range h.Fields {
		if strings.EqualFold(h.Fields[i].Name, name) {
			values = append(values, h.Fields[i].Value)
		}
	}
	return
}

// HasToken returns true if any field of type t holds token in its
// comma-separated value list, compared case-insensitively.
func (h *Header) HasToken(t HeaderType, token string) bool {
	var values []string
	for i := range h.Fields {
		if h.Fields[i].Type == t {
			values = append(values, h.Fields[i].Value)
		}
	}
	return httpguts.HeaderValuesContainsToken(values, token)
}

// Set updates the first field named name in place, or appends a new
// field if there is none. Original field order is preserved.
func (h *Header) Set(name, value string) {
	if i := h.index(name); i >= 0 {
		h.Fields[i].Value = value
		return
	}
	h.Add(name, value)
}

// SetType is Set using the canonical name of t.
func (h *Header) SetType(t HeaderType, value string) {
	h.Set(t.String(), value)
}

// Add appends a field, even if one with the same name exists.
func (h *Header) Add(name, value string) {
	h.Fields = append(h.Fields, HeaderField{Type: HeaderTypeOf(name), Name: name, Value: value})
}

// Del removes all fields named name.
func (h *Header) Del(name string) {
	fields := h.Fields[:0]
	for _, f := range h.Fields {
		if !strings.EqualFold(f.Name, name) {
			fields = append(fields, f)
		}
	}
	h.Fields = fields
}

// Has returns true if a field named name is present.
func (h *Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Validate checks that every field is legal to send.
func (h *Header) Validate() error {
	for _, f := range h.Fields {
		if !httpguts.ValidHeaderFieldName(f.Name) || !httpguts.ValidHeaderFieldValue(f.Value) {
			return errors.Wrapf(ErrBadHeader, "%s: %q", f.Name, f.Value)
		}
	}
	return nil
}

// AppendTo appends the header lines, each terminated by CRLF, to dst.
// The blank line ending the block is not written.
func (h *Header) AppendTo(dst []byte) []byte {
	for _, f := range h.Fields {
		dst = append(dst, f.Name...)
		dst = append(dst, ':', ' ')
		dst = append(dst, f.Value...)
		dst = append(dst, '\r', '\n')
	}
	return dst
}
