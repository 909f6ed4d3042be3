package http

import (
	"bytes"
	"io"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"
)

// DecodeMode selects how a buffered response body is returned.
type DecodeMode int

const (
	DecodeRaw DecodeMode = iota
	DecodeJSON
	DecodeText
)

func (m DecodeMode) String() string {
	switch m {
	case DecodeJSON:
		return "json"
	case DecodeText:
		return "text"
	default:
		return "raw"
	}
}

// payload is the request body variant: none, JSON, or multipart.
type payload interface {
	contentType() string
	contentLength() int64
	reader() io.Reader
}

type jsonPayload struct {
	data []byte
}

func (p jsonPayload) contentType() string  { return contentTypeJSON }
func (p jsonPayload) contentLength() int64 { return int64(len(p.data)) }
func (p jsonPayload) reader() io.Reader    { return bytes.NewReader(p.data) }

type multipartPayload struct {
	body *MultipartBody
}

func (p multipartPayload) contentType() string  { return p.body.ContentType() }
func (p multipartPayload) contentLength() int64 { return p.body.ContentLength }
func (p multipartPayload) reader() io.Reader    { return p.body.Reader() }

// Plan is a validated RequestConfig: the outbound request plus the options the
// response pipeline needs. It is built once and not mutated after dispatch.
type Plan struct {
	Method      string
	URL         *neturl.URL
	Header      http.Header
	Decode      DecodeMode
	Compression bool
	Destination string

	// Timeout is meaningful only when HasTimeout is set. MaxSize < 0 means unlimited.
	Timeout    time.Duration
	HasTimeout bool
	MaxSize    int64

	OnProgress ProgressFunc

	payload payload
	config  RequestConfig
}

// Body returns the encoded request body, or nil for requests without one.
func (p *Plan) Body() io.Reader {
	if p.payload == nil {
		return nil
	}
	return p.payload.reader()
}

// ContentLength returns the encoded body length in bytes.
func (p *Plan) ContentLength() int64 {
	if p.payload == nil {
		return 0
	}
	return p.payload.contentLength()
}

// Validate checks cfg and builds the outbound request. Checks run in a fixed
// order so the same invalid config always reports the same error.
func Validate(cfg RequestConfig) (*Plan, error) {
	return buildPlan(cfg, NewBoundary)
}

func buildPlan(cfg RequestConfig, boundary func() string) (*Plan, error) {
	plan := &Plan{
		Method:  http.MethodGet,
		Header:  make(http.Header),
		MaxSize: -1,
		config:  cfg,
	}

	// scheme
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, invalidf("url.scheme", "unsupported URL scheme in %q (only http and https are allowed)", cfg.URL)
	}
	u, err := neturl.Parse(cfg.URL)
	if err != nil {
		return nil, &Error{Kind: KindInvalidConfig, Field: "url", Err: err}
	}
	if u.Hostname() == "" {
		return nil, invalidf("url", "URL must have a host")
	}

	// query
	if len(cfg.Query) > 0 {
		if u.RawQuery != "" {
			return nil, conflictf("query", "URL %q already has a query string", cfg.URL)
		}
		u.RawQuery = encodeQuery(cfg.Query)
	}
	plan.URL = u

	// destination
	if cfg.Destination != "" {
		if cfg.JSON || cfg.Text {
			return nil, conflictf("destination", "destination cannot be combined with json or text decoding")
		}
		plan.Destination = cfg.Destination
	}

	// headers
	for k, v := range cfg.Headers {
		if strings.TrimSpace(k) == "" {
			return nil, invalidf("headers", "header name must not be empty")
		}
		plan.Header.Set(k, v)
	}
	if cfg.Auth != "" {
		plan.Header.Set("Authorization", cfg.Auth)
	}
	if cfg.Authorization != "" {
		plan.Header.Set("Authorization", cfg.Authorization)
	}
	if cfg.UserAgent != "" {
		plan.Header.Set("User-Agent", cfg.UserAgent)
	}
	if cfg.Referer != "" {
		plan.Header.Set("Referer", cfg.Referer)
	}
	if cfg.Referrer != "" {
		plan.Header.Set("Referer", cfg.Referrer)
	}

	// decode mode
	switch {
	case cfg.JSON && cfg.Text:
		return nil, conflictf("json", "json and text decoding are mutually exclusive")
	case cfg.JSON:
		plan.Decode = DecodeJSON
	case cfg.Text:
		plan.Decode = DecodeText
	}

	// body / form
	switch {
	case cfg.Body != nil && len(cfg.Form) > 0:
		return nil, conflictf("form", "body and form are mutually exclusive")
	case cfg.Body != nil:
		data, err := encodeJSON("body", cfg.Body)
		if err != nil {
			return nil, err
		}
		plan.payload = jsonPayload{data: data}
	case len(cfg.Form) > 0:
		body, err := EncodeMultipart(cfg.Form, boundary())
		if err != nil {
			return nil, err
		}
		plan.payload = multipartPayload{body: body}
	}
	if plan.payload != nil {
		plan.Method = http.MethodPost
		plan.Header.Set("Content-Type", plan.payload.contentType())
		plan.Header.Set("Content-Length", strconv.FormatInt(plan.payload.contentLength(), 10))
	}

	// compression
	if cfg.Compression {
		plan.Compression = true
		plan.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}

	// timeout
	timeout := cfg.Timeout
	if timeout == nil {
		if timeout, err = IntegerOption("timeout", cfg.RawTimeout); err != nil {
			return nil, err
		}
	}
	if timeout != nil {
		if *timeout < 0 {
			return nil, invalidf("timeout", "must not be negative, got %d", *timeout)
		}
		plan.Timeout = time.Duration(*timeout) * time.Millisecond
		plan.HasTimeout = true
	}

	// maxSize
	maxSize := cfg.MaxSize
	if maxSize == nil {
		if maxSize, err = IntegerOption("maxSize", cfg.RawMaxSize); err != nil {
			return nil, err
		}
	}
	if maxSize != nil {
		if *maxSize < 0 {
			return nil, invalidf("maxSize", "must not be negative, got %d", *maxSize)
		}
		plan.MaxSize = *maxSize
	}

	plan.OnProgress = cfg.OnProgress
	return plan, nil
}

// encodeQuery renders the query map; keys come out sorted.
func encodeQuery(query map[string]string) string {
	values := make(neturl.Values, len(query))
	for k, v := range query {
		values.Set(k, v)
	}
	return values.Encode()
}
