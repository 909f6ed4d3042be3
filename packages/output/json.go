package output

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

// JSONExchange is the document written for one exchange
type JSONExchange struct {
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	OK       bool          `json:"ok"`
	Time     string        `json:"time"`
	Response *JSONResponse `json:"response,omitempty"`
	Error    *JSONError    `json:"error,omitempty"`
	Schema   *JSONSchema   `json:"schema,omitempty"`
}

type JSONResponse struct {
	StatusCode  int               `json:"statusCode"`
	FinalURL    string            `json:"finalUrl"`
	Redirects   int               `json:"redirects"`
	Received    int64             `json:"received"`
	Duration    float64           `json:"duration"`
	Headers     map[string]string `json:"headers,omitempty"`
	Kind        string            `json:"kind"`
	Body        any               `json:"body,omitempty"`
	Destination string            `json:"destination,omitempty"`
}

type JSONError struct {
	Kind       string `json:"kind"`
	Field      string `json:"field,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
	Partial    any    `json:"partial,omitempty"`
}

type JSONSchema struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// JSONFormatter writes one indented JSON document per exchange
type JSONFormatter struct {
	writer io.Writer
	now    func() time.Time
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatExchange(e *Exchange) {
	doc := JSONExchange{
		Method: e.Method,
		URL:    e.URL,
		OK:     !e.Failed(),
		Time:   f.now().Format(time.RFC3339),
	}

	if o := e.Outcome; o != nil {
		resp := &JSONResponse{
			StatusCode:  o.StatusCode,
			FinalURL:    o.URL,
			Redirects:   o.Redirects,
			Received:    o.Received,
			Duration:    float64(o.Duration.Milliseconds()),
			Headers:     make(map[string]string, len(o.Headers)),
			Kind:        o.Kind.String(),
			Destination: e.Destination,
		}
		for k := range o.Headers {
			resp.Headers[k] = o.Headers.Get(k)
		}
		resp.Body = jsonBody(o, e.Pick)
		doc.Response = resp
	}

	if e.Err != nil {
		doc.Error = &JSONError{Kind: "error", Message: e.Err.Error()}
		var herr *http.Error
		if errors.As(e.Err, &herr) {
			doc.Error.Kind = string(herr.Kind)
			doc.Error.Field = herr.Field
			doc.Error.StatusCode = herr.StatusCode
			doc.Error.Partial = jsonValue(herr.Partial)
		}
	}

	if e.Schema != nil {
		doc.Schema = &JSONSchema{Valid: e.Schema.Valid(), Errors: e.Schema.Errors}
	}

	f.encode(doc)
}

func (f *JSONFormatter) FormatError(err error) {
	f.encode(map[string]any{
		"ok":    false,
		"error": JSONError{Kind: string(http.KindOf(err)), Message: err.Error()},
	})
}

func (f *JSONFormatter) encode(v any) {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}

func jsonBody(o *http.Outcome, pick string) any {
	switch o.Kind {
	case http.OutcomeJSON:
		if pick != "" {
			return o.Get(pick).Value()
		}
		return o.JSON
	case http.OutcomeText:
		return o.Text
	case http.OutcomeRaw:
		return jsonValue(o.Raw)
	default:
		return nil
	}
}

// jsonValue keeps []byte readable: valid UTF-8 becomes a string, anything
// else is base64 encoded by encoding/json.
func jsonValue(v any) any {
	if b, ok := v.([]byte); ok && utf8.Valid(b) {
		return string(b)
	}
	return v
}
