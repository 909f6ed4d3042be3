package metrics

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitfetch/packages/bench"
)

// PrometheusExporter writes summaries in the Prometheus text exposition
// format, suitable for the node_exporter textfile collector.
type PrometheusExporter struct {
	writer io.Writer
	prefix string
	now    func() time.Time
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusPrefix sets the metric name prefix
func WithPrometheusPrefix(prefix string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.prefix = prefix
	}
}

func withPrometheusClock(now func() time.Time) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.now = now
	}
}

func NewPrometheusExporter(w io.Writer, opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{
		writer: w,
		prefix: "hitfetch_bench",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PrometheusExporter) Export(ctx context.Context, target string, summary *bench.Summary) error {
	var b strings.Builder
	now := p.now().UnixMilli()

	var last string
	for _, s := range Samples(summary) {
		name := p.prefix + "_" + s.Name
		if s.Name != last {
			if last != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", name, s.Help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", name, s.Type)
			last = s.Name
		}

		labels := map[string]string{"target": target}
		for k, v := range s.Labels {
			labels[k] = v
		}
		fmt.Fprintf(&b, "%s{%s} %s %d\n", name, formatLabels(labels), formatValue(s.Value), now)
	}

	_, err := io.WriteString(p.writer, b.String())
	return err
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=\"%s\"", k, sanitizeLabel(labels[k])))
	}
	return strings.Join(parts, ",")
}

func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.3f", v)
}

// sanitizeLabel makes a string safe for use as a Prometheus label value
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
