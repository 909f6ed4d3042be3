package http

import (
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedBoundary() string { return "0123456789abcdef" }

func TestValidate_URL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr *Error
	}{
		{"valid http", "http://example.com", nil},
		{"valid https", "https://example.com/path?q=1", nil},
		{"ftp scheme", "ftp://example.com", ErrInvalidURLScheme},
		{"file scheme", "file:///etc/passwd", ErrInvalidURLScheme},
		{"no scheme", "example.com", ErrInvalidURLScheme},
		{"uppercase scheme", "HTTP://example.com", ErrInvalidURLScheme},
		{"missing host", "http://", ErrInvalidURL},
		{"invalid url", "http://[::1", ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(RequestConfig{URL: tt.url})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr == ErrInvalidURL {
				assert.NotErrorIs(t, err, ErrInvalidURLScheme)
			}
		})
	}
}

func TestValidate_Order(t *testing.T) {
	tests := []struct {
		name string
		cfg  RequestConfig
		want *Error
	}{
		{
			name: "scheme before query conflict",
			cfg:  RequestConfig{URL: "ftp://x/?a=1", Query: map[string]string{"b": "2"}},
			want: ErrInvalidURLScheme,
		},
		{
			name: "query conflict before destination conflict",
			cfg:  RequestConfig{URL: "http://x/?a=1", Query: map[string]string{"b": "2"}, Destination: "/tmp/x", JSON: true},
			want: ErrConflictingQuery,
		},
		{
			name: "destination conflict before json/text conflict",
			cfg:  RequestConfig{URL: "http://x/", Destination: "/tmp/x", JSON: true, Text: true},
			want: &Error{Kind: KindConflictingOptions, Field: "destination"},
		},
		{
			name: "json/text conflict before body/form conflict",
			cfg:  RequestConfig{URL: "http://x/", JSON: true, Text: true, Body: 1, Form: []FormPart{{Name: "a", Data: "b"}}},
			want: &Error{Kind: KindConflictingOptions, Field: "json"},
		},
		{
			name: "body/form conflict before timeout",
			cfg:  RequestConfig{URL: "http://x/", Body: 1, Form: []FormPart{{Name: "a", Data: "b"}}, Timeout: ms(-1)},
			want: ErrConflictingBodyForm,
		},
		{
			name: "non-serializable body",
			cfg:  RequestConfig{URL: "http://x/", Body: map[string]any{"f": func() {}}},
			want: ErrNonSerializableBody,
		},
		{
			name: "timeout before maxSize",
			cfg:  RequestConfig{URL: "http://x/", Timeout: ms(-1), MaxSize: ms(-1)},
			want: &Error{Kind: KindInvalidConfig, Field: "timeout"},
		},
		{
			name: "maxSize",
			cfg:  RequestConfig{URL: "http://x/", MaxSize: ms(-5)},
			want: &Error{Kind: KindInvalidConfig, Field: "maxSize"},
		},
		{
			name: "scheme before loose timeout",
			cfg:  RequestConfig{URL: "ftp://x/", JSON: true, Text: true, RawTimeout: 1.5},
			want: ErrInvalidURLScheme,
		},
		{
			name: "json/text conflict before loose timeout",
			cfg:  RequestConfig{URL: "http://x/", JSON: true, Text: true, RawTimeout: 1.5},
			want: &Error{Kind: KindConflictingOptions, Field: "json"},
		},
		{
			name: "form file before loose timeout",
			cfg: RequestConfig{
				URL:        "http://x/",
				Form:       []FormPart{{Name: "a", Load: func() ([]byte, error) { return nil, os.ErrNotExist }}},
				RawTimeout: math.NaN(),
			},
			want: &Error{Kind: KindInvalidConfig, Field: "form.file"},
		},
		{
			name: "loose timeout before loose maxSize",
			cfg:  RequestConfig{URL: "http://x/", RawTimeout: "soon", RawMaxSize: -1},
			want: &Error{Kind: KindInvalidConfig, Field: "timeout"},
		},
		{
			name: "loose maxSize",
			cfg:  RequestConfig{URL: "http://x/", RawMaxSize: math.Inf(1)},
			want: &Error{Kind: KindInvalidConfig, Field: "maxSize"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want, "got %v", err)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	plan, err := Validate(RequestConfig{URL: "http://example.com/a"})
	require.NoError(t, err)

	assert.Equal(t, "GET", plan.Method)
	assert.Nil(t, plan.Body())
	assert.Equal(t, int64(0), plan.ContentLength())
	assert.Equal(t, DecodeRaw, plan.Decode)
	assert.False(t, plan.HasTimeout)
	assert.Equal(t, int64(-1), plan.MaxSize)
	assert.Empty(t, plan.Header.Get("Accept-Encoding"))
}

func TestValidate_Query(t *testing.T) {
	plan, err := Validate(RequestConfig{
		URL:   "http://example.com/search",
		Query: map[string]string{"q": "a b", "lang": "en"},
	})
	require.NoError(t, err)
	assert.Equal(t, "lang=en&q=a+b", plan.URL.RawQuery)

	// An empty map is not a conflict.
	_, err = Validate(RequestConfig{URL: "http://example.com/?x=1", Query: map[string]string{}})
	assert.NoError(t, err)
}

func TestValidate_JSONBody(t *testing.T) {
	plan, err := Validate(RequestConfig{URL: "http://example.com", Body: map[string]string{"name": "żółw"}})
	require.NoError(t, err)

	assert.Equal(t, "POST", plan.Method)
	assert.Equal(t, "application/json", plan.Header.Get("Content-Type"))
	// Byte length, not rune length.
	assert.Equal(t, "18", plan.Header.Get("Content-Length"))
	assert.Equal(t, int64(18), plan.ContentLength())
}

func TestValidate_Form(t *testing.T) {
	plan, err := buildPlan(RequestConfig{
		URL:  "http://example.com",
		Form: []FormPart{{Name: "a", Data: "b"}},
	}, fixedBoundary)
	require.NoError(t, err)

	assert.Equal(t, "POST", plan.Method)
	assert.Equal(t, "multipart/form-data; boundary=0123456789abcdef", plan.Header.Get("Content-Type"))
	assert.Greater(t, plan.ContentLength(), int64(0))
}

func TestValidate_FormFieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		part  FormPart
		field string
		kind  ErrorKind
	}{
		{"empty name", FormPart{Data: "x"}, "form.name", KindInvalidConfig},
		{"structured file", FormPart{Name: "a", Filename: "a.json", Data: map[string]int{"n": 1}}, "form.filename", KindInvalidConfig},
		{"non-serializable data", FormPart{Name: "a", Data: make(chan int)}, "form.data", KindNonSerializableValue},
		{"NaN data", FormPart{Name: "a", Data: math.NaN()}, "form.data", KindNonSerializableValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(RequestConfig{URL: "http://example.com", Form: []FormPart{tt.part}})
			require.Error(t, err)
			assert.ErrorIs(t, err, &Error{Kind: tt.kind, Field: tt.field})
		})
	}
}

func TestValidate_Compression(t *testing.T) {
	plan, err := Validate(RequestConfig{URL: "http://example.com", Compression: true})
	require.NoError(t, err)
	assert.True(t, plan.Compression)
	assert.Equal(t, "br, gzip, deflate", plan.Header.Get("Accept-Encoding"))
}

func TestValidate_EmptyHeaderName(t *testing.T) {
	_, err := Validate(RequestConfig{URL: "http://example.com", Headers: map[string]string{" ": "x"}})
	assert.ErrorIs(t, err, &Error{Kind: KindInvalidConfig, Field: "headers"})
}

func TestCheckSerializable(t *testing.T) {
	type record struct {
		Name  string
		Tags  []string
		inner func()
	}

	ok := []any{
		nil,
		"s",
		true,
		42,
		3.5,
		[]any{1, "a", nil, map[string]any{"x": []int{1}}},
		map[string]any{"a": map[string]any{"b": false}},
		record{Name: "n", Tags: []string{"t"}},
		&record{},
	}
	for _, v := range ok {
		assert.NoError(t, checkSerializable(v), "%#v", v)
	}

	bad := []any{
		math.Inf(1),
		math.NaN(),
		func() {},
		make(chan int),
		map[int]string{1: "a"},
		[]any{1, complex(1, 2)},
		[]byte("buffer"),
		map[string]any{"deep": []any{math.NaN()}},
	}
	for _, v := range bad {
		assert.Error(t, checkSerializable(v), "%#v", v)
	}
}

func TestIntegerOption(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    *int64
		wantErr bool
	}{
		{"nil", nil, nil, false},
		{"int", 5, ms(5), false},
		{"integral float", float64(250), ms(250), false},
		{"zero", 0.0, ms(0), false},
		{"fraction", 1.5, nil, true},
		{"negative", -1, nil, true},
		{"NaN", math.NaN(), nil, true},
		{"infinity", math.Inf(1), nil, true},
		{"huge", 1e300, nil, true},
		{"string", "100", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IntegerOption("timeout", tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, &Error{Kind: KindInvalidConfig, Field: "timeout"})
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_LooseNumbers(t *testing.T) {
	plan, err := Validate(RequestConfig{URL: "http://example.com", RawTimeout: float64(250), RawMaxSize: 1024})
	require.NoError(t, err)
	assert.True(t, plan.HasTimeout)
	assert.Equal(t, 250*time.Millisecond, plan.Timeout)
	assert.Equal(t, int64(1024), plan.MaxSize)

	// Typed values win over loose ones.
	plan, err = Validate(RequestConfig{URL: "http://example.com", Timeout: ms(10), RawTimeout: 1.5})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, plan.Timeout)
}

func TestValidate_FormLoader(t *testing.T) {
	calls := 0
	plan, err := buildPlan(RequestConfig{
		URL: "http://example.com",
		Form: []FormPart{{Name: "upload", Filename: "notes.bin", Load: func() ([]byte, error) {
			calls++
			return []byte{0x00, 0x01}, nil
		}}},
	}, fixedBoundary)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Greater(t, plan.ContentLength(), int64(0))

	_, err = Validate(RequestConfig{
		URL:  "http://example.com",
		Form: []FormPart{{Name: "upload", Data: "x", Load: func() ([]byte, error) { return nil, nil }}},
	})
	assert.ErrorIs(t, err, &Error{Kind: KindConflictingOptions, Field: "form.data"})
}
