package http

import (
	"math"
	"time"
)

// ProgressFunc receives the size of each body chunk, the running total and the
// declared content-length.
type ProgressFunc func(chunk int, received, total int64)

// RequestConfig is the declarative description of one exchange. It is only read
// by the client, never modified.
type RequestConfig struct {
	URL     string
	Query   map[string]string
	Headers map[string]string

	Auth          string
	Authorization string
	UserAgent     string
	Referer       string
	Referrer      string

	// JSON and Text select how a buffered body is decoded. They exclude each
	// other and Destination.
	JSON bool
	Text bool

	// Body and Form exclude each other. Either one forces POST.
	Body any
	Form []FormPart

	Compression bool
	Destination string

	// Timeout is in milliseconds, MaxSize in bytes. Nil means unset.
	Timeout *int64
	MaxSize *int64

	// RawTimeout and RawMaxSize are loosely typed numbers as decoded from
	// request files. They are shape-checked in the timeout and maxSize steps
	// of validation and ignored when Timeout or MaxSize is set.
	RawTimeout any
	RawMaxSize any

	OnProgress ProgressFunc
}

// FormPart is one field of a multipart/form-data body. Data is a string, a
// []byte, or any JSON value; JSON values cannot carry a Filename.
//
// Load, when set, supplies the part's bytes during validation in place of
// Data. It is how file uploads are read.
type FormPart struct {
	Name     string
	Filename string
	Data     any
	Load     func() ([]byte, error)
}

func NewRequestConfig(url string) *RequestConfig {
	return &RequestConfig{
		URL:     url,
		Headers: make(map[string]string),
	}
}

func (r *RequestConfig) SetHeader(key, value string) *RequestConfig {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

func (r *RequestConfig) SetTimeout(d time.Duration) *RequestConfig {
	ms := d.Milliseconds()
	r.Timeout = &ms
	return r
}

func (r *RequestConfig) SetMaxSize(n int64) *RequestConfig {
	r.MaxSize = &n
	return r
}

func (r *RequestConfig) AddFormPart(name, filename string, data any) *RequestConfig {
	r.Form = append(r.Form, FormPart{Name: name, Filename: filename, Data: data})
	return r
}

// IntegerOption converts a loosely typed number (as decoded from YAML or JSON
// request files) into a non-negative integer option. A nil value stays unset.
func IntegerOption(field string, v any) (*int64, error) {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	default:
		return nil, invalidf(field, "expected a number, got %T", v)
	}

	switch {
	case math.IsNaN(f):
		return nil, invalidf(field, "NaN is not allowed")
	case math.IsInf(f, 0):
		return nil, invalidf(field, "must be finite")
	case f != math.Trunc(f):
		return nil, invalidf(field, "must be an integer, got %v", f)
	case f < 0:
		return nil, invalidf(field, "must not be negative, got %v", f)
	case f >= math.MaxInt64:
		return nil, invalidf(field, "out of range: %v", f)
	}

	n := int64(f)
	return &n, nil
}
