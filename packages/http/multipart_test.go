package http

import (
	"bytes"
	"io"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBoundary(t *testing.T) {
	a := NewBoundary()
	b := NewBoundary()

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.Trim(a, "0123456789abcdef"), "")
}

func TestEncodeMultipart_RoundTrip(t *testing.T) {
	parts := []FormPart{
		{Name: "title", Data: "hello world"},
		{Name: "avatar", Filename: "me.png", Data: []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}},
		{Name: "blob", Data: []byte("raw")},
		{Name: "notes", Filename: "notes.txt", Data: "plain text file"},
		{Name: "unknown", Filename: "data.zzz", Data: []byte("bin")},
		{Name: "meta", Data: map[string]any{"n": 1, "tags": []string{"a"}}},
		{Name: `quo"ted`, Data: "q"},
	}

	body, err := EncodeMultipart(parts, "testboundary")
	require.NoError(t, err)
	assert.Len(t, body.Parts, len(parts)+1)
	assert.Equal(t, int64(len(body.Bytes())), body.ContentLength)

	type tuple struct {
		name, filename, contentType, data string
	}
	var got []tuple
	r := multipart.NewReader(bytes.NewReader(body.Bytes()), "testboundary")
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		got = append(got, tuple{p.FormName(), p.FileName(), p.Header.Get("Content-Type"), string(data)})
	}

	assert.Equal(t, []tuple{
		{"title", "", "", "hello world"},
		{"avatar", "me.png", "image/png", "\x89PNG\x00\xff"},
		{"blob", "", "application/octet-stream", "raw"},
		{"notes", "notes.txt", "text/plain; charset=utf-8", "plain text file"},
		{"unknown", "data.zzz", "application/octet-stream", "bin"},
		{"meta", "", "application/json", `{"n":1,"tags":["a"]}`},
		{`quo"ted`, "", "", "q"},
	}, got)
}

func TestEncodeMultipart_Framing(t *testing.T) {
	body, err := EncodeMultipart([]FormPart{
		{Name: "a", Data: "1"},
		{Name: "b", Data: "2"},
	}, "xyz")
	require.NoError(t, err)
	require.Len(t, body.Parts, 3)

	assert.True(t, bytes.HasPrefix(body.Parts[0], []byte("--xyz\r\n")))
	assert.True(t, bytes.HasPrefix(body.Parts[1], []byte("\r\n--xyz\r\n")))
	assert.Equal(t, "\r\n--xyz--\r\n", string(body.Parts[2]))
	assert.Equal(t, "multipart/form-data; boundary=xyz", body.ContentType())

	streamed, err := io.ReadAll(body.Reader())
	require.NoError(t, err)
	assert.Equal(t, body.Bytes(), streamed)
}

func TestEncodeMultipart_ValidatesBeforeEncoding(t *testing.T) {
	_, err := EncodeMultipart([]FormPart{
		{Name: "ok", Data: "1"},
		{Name: "", Data: "2"},
	}, "xyz")
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Kind: KindInvalidConfig, Field: "form.name"})
	assert.Contains(t, err.Error(), "part 1")
}
