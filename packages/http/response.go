package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// OutcomeKind says which field of an Outcome holds the value.
type OutcomeKind int

const (
	// OutcomeNone is returned when the body was streamed to a destination file.
	OutcomeNone OutcomeKind = iota
	OutcomeJSON
	OutcomeText
	OutcomeRaw
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeJSON:
		return "json"
	case OutcomeText:
		return "text"
	case OutcomeRaw:
		return "raw"
	default:
		return "none"
	}
}

// Outcome is a successful exchange. Raw always holds the buffered body bytes,
// also when they were decoded into JSON or Text.
type Outcome struct {
	Kind OutcomeKind
	JSON any
	Text string
	Raw  []byte

	StatusCode int
	Headers    http.Header
	URL        string
	Redirects  int
	Received   int64
	Duration   time.Duration
}

// Value returns the decoded value, or nil for destination downloads.
func (o *Outcome) Value() any {
	switch o.Kind {
	case OutcomeJSON:
		return o.JSON
	case OutcomeText:
		return o.Text
	case OutcomeRaw:
		return o.Raw
	default:
		return nil
	}
}

// Get evaluates a gjson path against a JSON body.
func (o *Outcome) Get(path string) gjson.Result {
	if o.Kind != OutcomeJSON {
		return gjson.Result{}
	}
	return gjson.GetBytes(o.Raw, path)
}

func (o *Outcome) Header(key string) string {
	return o.Headers.Get(key)
}

func (o *Outcome) ContentType() string {
	return o.Header("Content-Type")
}

func (o *Outcome) IsJSON() bool {
	return strings.Contains(o.ContentType(), "application/json")
}

func (o *Outcome) DurationMs() int64 {
	return o.Duration.Milliseconds()
}
