package http

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	contentTypeOctetStream = "application/octet-stream"
	contentTypeJSON        = "application/json"
)

// MultipartBody is an encoded multipart/form-data payload. Parts holds one
// buffer per form part (separator, headers, payload) followed by the closing
// boundary marker; their concatenation is the wire body.
type MultipartBody struct {
	Boundary      string
	Parts         [][]byte
	ContentLength int64
}

// ContentType returns the request content-type naming the boundary.
func (m *MultipartBody) ContentType() string {
	return "multipart/form-data; boundary=" + m.Boundary
}

// Reader streams the part buffers in order.
func (m *MultipartBody) Reader() io.Reader {
	readers := make([]io.Reader, len(m.Parts))
	for i, p := range m.Parts {
		readers[i] = bytes.NewReader(p)
	}
	return io.MultiReader(readers...)
}

// Bytes returns the whole payload as one slice.
func (m *MultipartBody) Bytes() []byte {
	return bytes.Join(m.Parts, nil)
}

// NewBoundary returns a random hex boundary token.
func NewBoundary() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EncodeMultipart encodes parts in order using the given boundary. Every part is
// validated before any byte is produced.
func EncodeMultipart(parts []FormPart, boundary string) (*MultipartBody, error) {
	encoded := make([][]byte, len(parts))
	for i, p := range parts {
		data, err := validateFormPart(i, p)
		if err != nil {
			return nil, err
		}
		encoded[i] = data
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, invalidf("form", "boundary: %v", err)
	}

	body := &MultipartBody{Boundary: boundary}
	start := 0
	for i, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", contentDisposition(p))
		if ct := partContentType(p); ct != "" {
			header.Set("Content-Type", ct)
		}

		pw, err := w.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if _, err := pw.Write(encoded[i]); err != nil {
			return nil, err
		}

		body.Parts = append(body.Parts, cut(buf, &start))
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	body.Parts = append(body.Parts, cut(buf, &start))
	body.ContentLength = int64(buf.Len())

	return body, nil
}

// cut returns a copy of buf's bytes written since *start and advances it.
func cut(buf *bytes.Buffer, start *int) []byte {
	b := buf.Bytes()
	part := make([]byte, len(b)-*start)
	copy(part, b[*start:])
	*start = len(b)
	return part
}

func validateFormPart(i int, p FormPart) ([]byte, error) {
	if p.Name == "" {
		return nil, invalidf("form.name", "part %d: name must be a non-empty string", i)
	}

	if p.Load != nil {
		if p.Data != nil {
			return nil, conflictf("form.data", "part %d (%s): data and file are mutually exclusive", i, p.Name)
		}
		data, err := p.Load()
		if err != nil {
			return nil, &Error{Kind: KindInvalidConfig, Field: "form.file", Message: fmt.Sprintf("part %d (%s)", i, p.Name), Err: err}
		}
		return data, nil
	}

	switch data := p.Data.(type) {
	case string:
		return []byte(data), nil
	case []byte:
		return data, nil
	default:
		if p.Filename != "" {
			return nil, invalidf("form.filename", "part %d (%s): only string or binary data can be sent as a file", i, p.Name)
		}
		encoded, err := encodeJSON("form.data", p.Data)
		if err != nil {
			return nil, err
		}
		return encoded, nil
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func contentDisposition(p FormPart) string {
	cd := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(p.Name))
	if p.Filename != "" {
		cd += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(p.Filename))
	}
	return cd
}

// partContentType picks the part content-type: the filename extension's MIME
// type when known, octet-stream for binary data, JSON for structured data, and
// nothing for plain strings.
func partContentType(p FormPart) string {
	_, binary := p.Data.([]byte)
	binary = binary || p.Load != nil
	if p.Filename != "" {
		if ct := mime.TypeByExtension(filepath.Ext(p.Filename)); ct != "" {
			return ct
		}
		if binary {
			return contentTypeOctetStream
		}
		return ""
	}

	if binary {
		return contentTypeOctetStream
	}
	if _, ok := p.Data.(string); ok {
		return ""
	}
	return contentTypeJSON
}
