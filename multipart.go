package webcpp

import (
	"bytes"
	"crypto/rand"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const boundaryAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewBoundary returns a fresh multipart boundary: ten dashes followed by
// 30 to 40 random alphanumeric characters.
func NewBoundary() string {
	var rnd [41]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		panic(err)
	}
	n := 30 + int(rnd[0])%11
	var sb strings.Builder
	sb.Grow(10 + n)
	sb.WriteString("----------")
	for _, b := range rnd[1 : 1+n] {
		sb.WriteByte(boundaryAlphabet[int(b)%len(boundaryAlphabet)])
	}
	return sb.String()
}

func parseMultipart(boundary string, data []byte, opts BodyOptions) (body *Body, err error) {
	if boundary == "" || len(boundary) > 70 {
		return nil, errors.Wrapf(ErrBadBoundary, "%q", boundary)
	}
	delim := []byte("--" + boundary)
	final := SearchPositionReverse(data, []byte("--"+boundary+"--"), 0, len(data))
	if final == NotFound {
		return nil, errors.Wrap(ErrBadBoundary, "final boundary not found")
	}
	body = &Body{}
	defer func() {
		if err != nil {
			body.Close()
			body = nil
		}
	}()
	first := SearchPosition(data, delim, 0, final)
	if first == NotFound {
		return
	}
	for _, part := range Split(data, []byte("--"+boundary+"\r\n"), first, final) {
		if part.Empty() {
			continue
		}
		if part.Len() >= 2 && bytes.HasSuffix(part.Bytes(data), crlf) {
			part.End -= 2
		}
		var value BodyValue
		if value, err = parsePart(data[part.Start:part.End], opts); err != nil {
			return
		}
		body.Values = append(body.Values, value)
	}
	return
}

func parsePart(part []byte, opts BodyOptions) (v BodyValue, err error) {
	var hdr Header
	done, err := hdr.Parse(part, 0, 0)
	if err != nil {
		return v, err
	}
	if !done {
		return v, errors.Wrap(ErrBadHeader, "unterminated part header")
	}
	if disp, ok := hdr.GetType(HeaderContentDisposition); ok {
		_, params, perr := mime.ParseMediaType(disp)
		if perr != nil {
			return v, errors.Wrapf(ErrBadHeader, "Content-Disposition: %q", disp)
		}
		v.Name = params["name"]
		v.FileName = params["filename"]
	}
	v.ContentType, _ = hdr.GetType(HeaderContentType)
	content := part[hdr.Len():]
	v.Size = int64(len(content))
	if opts.Spool && v.FileName != "" {
		v.TempPath, err = spool(opts.TempDir, content)
		return
	}
	v.Data = append([]byte(nil), content...)
	return
}

func spool(dir string, content []byte) (string, error) {
	f, err := os.CreateTemp(dir, "webcpp-upload-*")
	if err != nil {
		return "", errors.Wrap(ErrTempFolder, err.Error())
	}
	_, err = f.Write(content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(ErrTempFolder, err.Error())
	}
	return f.Name(), nil
}

// BuildMultipart encodes values as a multipart/form-data body using a
// new boundary. Spooled values are read back from their files. It
// returns the Content-Type to send with the body.
func BuildMultipart(values []BodyValue) (contentType string, body []byte, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err = w.SetBoundary(NewBoundary()); err != nil {
		return "", nil, errors.WithStack(err)
	}
	for i := range values {
		v := &values[i]
		h := make(textproto.MIMEHeader)
		params := map[string]string{"name": v.Name}
		if v.FileName != "" {
			params["filename"] = v.FileName
		}
		h.Set("Content-Disposition", mime.FormatMediaType("form-data", params))
		if v.ContentType != "" {
			h.Set("Content-Type", v.ContentType)
		}
		var content []byte
		if content, err = v.Bytes(); err != nil {
			return "", nil, err
		}
		pw, perr := w.CreatePart(h)
		if perr != nil {
			return "", nil, errors.WithStack(perr)
		}
		if _, err = pw.Write(content); err != nil {
			return "", nil, errors.WithStack(err)
		}
	}
	if err = w.Close(); err != nil {
		return "", nil, errors.WithStack(err)
	}
	return w.FormDataContentType(), buf.Bytes(), nil
}
