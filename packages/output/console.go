package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

const previewLimit = 4096

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.green = color.New(color.FgGreen)
	f.red = color.New(color.FgRed)
	f.yellow = color.New(color.FgYellow)
	f.cyan = color.New(color.FgCyan)
	f.bold = color.New(color.Bold)
	f.dim = color.New(color.Faint)
	if f.noColor {
		for _, c := range []*color.Color{f.green, f.red, f.yellow, f.cyan, f.bold, f.dim} {
			c.DisableColor()
		}
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

// WithVerbose prints response headers and the request id line
func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatExchange(e *Exchange) {
	if e.Err != nil {
		f.formatFailure(e)
		return
	}
	o := e.Outcome

	status := f.green.Sprintf("%d", o.StatusCode)
	fmt.Fprintf(f.writer, "%s %s %s %s\n", f.green.Sprint("✓"), f.bold.Sprint(e.Method), e.URL, status)

	details := fmt.Sprintf("%dms, %s", o.DurationMs(), formatBytes(o.Received))
	if o.Redirects > 0 {
		details += fmt.Sprintf(", %d redirect(s) to %s", o.Redirects, o.URL)
	}
	fmt.Fprintf(f.writer, "  %s\n", f.cyan.Sprintf("(%s)", details))

	if f.verbose {
		f.formatHeaders(o)
	}

	if e.Schema != nil {
		if e.Schema.Valid() {
			fmt.Fprintf(f.writer, "  %s schema valid\n", f.green.Sprint("✓"))
		} else {
			fmt.Fprintf(f.writer, "  %s schema invalid\n", f.red.Sprint("✗"))
			for _, msg := range e.Schema.Errors {
				fmt.Fprintf(f.writer, "    %s %s\n", f.red.Sprint("→"), msg)
			}
		}
	}

	if o.Kind == http.OutcomeNone {
		if e.Destination != "" {
			fmt.Fprintf(f.writer, "  saved %s to %s\n", formatBytes(o.Received), e.Destination)
		}
		return
	}

	fmt.Fprintln(f.writer)
	fmt.Fprintln(f.writer, f.body(o, e.Pick))
}

func (f *ConsoleFormatter) formatFailure(e *Exchange) {
	fmt.Fprintf(f.writer, "%s %s %s\n", f.red.Sprint("✗"), f.bold.Sprint(e.Method), e.URL)

	var herr *http.Error
	if !errors.As(e.Err, &herr) {
		fmt.Fprintf(f.writer, "  %s\n", f.red.Sprint(e.Err.Error()))
		return
	}

	kind := string(herr.Kind)
	if herr.Field != "" {
		kind += "(" + herr.Field + ")"
	}
	if herr.Kind == http.KindRequestTimeout || herr.Kind == http.KindResponseTimeout {
		fmt.Fprintf(f.writer, "  %s\n", f.yellow.Sprint(kind))
	} else {
		fmt.Fprintf(f.writer, "  %s\n", f.red.Sprint(kind))
	}
	if herr.StatusCode != 0 {
		fmt.Fprintf(f.writer, "  status: %d\n", herr.StatusCode)
	}
	if herr.Message != "" {
		fmt.Fprintf(f.writer, "  %s\n", herr.Message)
	}
	if herr.Err != nil {
		fmt.Fprintf(f.writer, "  %s\n", f.dim.Sprint(herr.Err.Error()))
	}

	if herr.Partial != nil {
		fmt.Fprintf(f.writer, "  partial body: %s\n", formatValue(partialText(herr.Partial), 200))
	}
}

func (f *ConsoleFormatter) formatHeaders(o *http.Outcome) {
	keys := make([]string, 0, len(o.Headers))
	for k := range o.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range o.Headers[k] {
			fmt.Fprintf(f.writer, "  %s %s\n", f.dim.Sprint(k+":"), v)
		}
	}
}

func (f *ConsoleFormatter) body(o *http.Outcome, pick string) string {
	switch o.Kind {
	case http.OutcomeJSON:
		if pick != "" {
			r := o.Get(pick)
			if !r.Exists() {
				return f.yellow.Sprintf("(no value at %s)", pick)
			}
			return gjson.Get(r.Raw, "@pretty").String()
		}
		return gjson.GetBytes(o.Raw, "@pretty").String()
	case http.OutcomeText:
		return truncate(o.Text, previewLimit)
	default:
		if o.IsJSON() && gjson.ValidBytes(o.Raw) {
			return truncate(gjson.GetBytes(o.Raw, "@pretty").String(), previewLimit)
		}
		if utf8.Valid(o.Raw) {
			return truncate(string(o.Raw), previewLimit)
		}
		return f.dim.Sprintf("(%s of binary data)", formatBytes(int64(len(o.Raw))))
	}
}

func partialText(v any) any {
	if b, ok := v.([]byte); ok && !utf8.Valid(b) {
		return fmt.Sprintf("(%d bytes of binary data)", len(b))
	}
	return v
}

func (f *ConsoleFormatter) FormatError(err error) {
	fmt.Fprintf(f.writer, "%s %v\n", f.red.Sprint("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	fmt.Fprintf(f.writer, "%s %s\n", f.bold.Sprint("hitfetch"), version)
}
