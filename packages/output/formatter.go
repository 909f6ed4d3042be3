package output

import (
	"fmt"
	"io"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
	"github.com/abdul-hamid-achik/hitfetch/packages/schema"
)

// Exchange is everything the CLI knows about one finished request.
type Exchange struct {
	Method      string
	URL         string
	Destination string
	Outcome     *http.Outcome
	Err         error

	// Pick is a gjson path applied to JSON outcomes; empty prints the whole body.
	Pick   string
	Schema *schema.Result
}

// Failed reports whether the exchange or its schema check failed.
func (e *Exchange) Failed() bool {
	return e.Err != nil || (e.Schema != nil && !e.Schema.Valid())
}

type Formatter interface {
	FormatExchange(e *Exchange)
	FormatError(err error)
}

// New returns the formatter registered under name.
func New(name string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch name {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want console or json)", name)
	}
}

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case []byte:
		return truncate(string(val), maxLen)
	}
	return truncate(fmt.Sprintf("%v", v), maxLen)
}

func truncate(s string, maxLen int) string {
	if maxLen > 0 && len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func formatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
