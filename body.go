package webcpp

import (
	"mime"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	mimeMultipartForm  = "multipart/form-data"
	mimeURLEncodedForm = "application/x-www-form-urlencoded"
	mimeTextPlain      = "text/plain"
)

// BodyOptions control how message bodies are interpreted.
type BodyOptions struct {
	Spool   bool   // write multipart file parts to temporary files
	TempDir string // directory for spooled files, os.TempDir() if empty
}

// BodyValue is one form field or multipart part.
//
// For a spooled part, TempPath names the file holding the content and
// Data is nil. Otherwise Data holds the content and TempPath is empty.
type BodyValue struct {
	Name        string
	ContentType string
	FileName    string // file name declared by the sender
	Data        []byte
	TempPath    string
	Size        int64
}

// Spooled returns true if the value content lives in a temporary file.
func (v *BodyValue) Spooled() bool {
	return v.TempPath != ""
}

// Bytes returns the content of the value, reading it back from disk if
// it was spooled.
func (v *BodyValue) Bytes() ([]byte, error) {
	if v.Spooled() {
		b, err := os.ReadFile(v.TempPath)
		return b, errors.WithStack(err)
	}
	return v.Data, nil
}

// Body is a message body split into values.
type Body struct {
	Values []BodyValue
}

// Get returns the first value named name, or nil.
func (b *Body) Get(name string) *BodyValue {
	for i := range b.Values {
		if b.Values[i].Name == name {
			return &b.Values[i]
		}
	}
	return nil
}

// Files returns the values that were sent as files.
func (b *Body) Files() (files []*BodyValue) {
	for i := range b.Values {
		if b.Values[i].FileName != "" {
			files = append(files, &b.Values[i])
		}
	}
	return
}

// Close removes any temporary files holding spooled values.
func (b *Body) Close() (err error) {
	for i := range b.Values {
		v := &b.Values[i]
		if v.TempPath != "" {
			if rmerr := os.Remove(v.TempPath); rmerr != nil && !os.IsNotExist(rmerr) && err == nil {
				err = errors.WithStack(rmerr)
			}
			v.TempPath = ""
		}
	}
	return
}

// ParseBody splits data according to contentType. Multipart form data
// and URL-encoded forms are split into their fields; anything else is
// returned as a single unnamed value.
func ParseBody(contentType string, data []byte, opts BodyOptions) (*Body, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
		params = nil
	}
	switch mediaType {
	case mimeMultipartForm:
		boundary, ok := params["boundary"]
		if !ok {
			return nil, errors.Wrap(ErrBadBoundary, "no boundary parameter")
		}
		return parseMultipart(boundary, data, opts)
	case mimeURLEncodedForm:
		return parseURLEncoded(data), nil
	}
	body := &Body{}
	if len(data) > 0 {
		body.Values = append(body.Values, BodyValue{
			ContentType: contentType,
			Data:        append([]byte(nil), data...),
			Size:        int64(len(data)),
		})
	}
	return body, nil
}

func parseURLEncoded(data []byte) *Body {
	body := &Body{}
	for _, pair := range Split(data, []byte{'&'}, 0, len(data)) {
		if pair.Empty() {
			continue
		}
		var key, value string
		if eq := SearchPosition(data, []byte{'='}, pair.Start, pair.End); eq != NotFound {
			key = ByteRange{pair.Start, eq}.Text(data)
			value = ByteRange{eq + 1, pair.End}.Text(data)
		} else {
			key = pair.Text(data)
		}
		value = unescape(value, true)
		body.Values = append(body.Values, BodyValue{
			Name: unescape(key, true),
			Data: []byte(value),
			Size: int64(len(value)),
		})
	}
	return body
}

// BuildURLEncoded encodes values as an application/x-www-form-urlencoded
// body, with keys in sorted order.
func BuildURLEncoded(values map[string]string) []byte {
	return []byte(EncodeQuery(values))
}
