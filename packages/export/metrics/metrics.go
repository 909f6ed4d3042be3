// Package metrics exports bench summaries to monitoring systems.
package metrics

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/hitfetch/packages/bench"
	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter MetricType = "counter"
	Gauge   MetricType = "gauge"
)

// Sample is a single metric data point derived from a summary.
type Sample struct {
	Name   string
	Help   string
	Type   MetricType
	Value  float64
	Labels map[string]string
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export publishes one finished run against target.
	Export(ctx context.Context, target string, summary *bench.Summary) error
}

// Samples flattens a summary into data points. Names carry no prefix;
// status codes and error kinds become labels. Order is stable.
func Samples(summary *bench.Summary) []Sample {
	samples := []Sample{
		{Name: "requests_total", Help: "Total number of HTTP requests made", Type: Counter, Value: float64(summary.TotalRequests)},
		{Name: "requests_success_total", Help: "Requests that completed without error", Type: Counter, Value: float64(summary.SuccessCount)},
		{Name: "requests_failed_total", Help: "Requests that ended in an error", Type: Counter, Value: float64(summary.ErrorCount)},
		{Name: "requests_timeout_total", Help: "Requests that hit the request or response timeout", Type: Counter, Value: float64(summary.TimeoutCount)},
		{Name: "received_bytes_total", Help: "Response body bytes received", Type: Counter, Value: float64(summary.BytesReceived)},
		{Name: "requests_per_second", Help: "Achieved throughput", Type: Gauge, Value: summary.RPS},
	}

	latency := []struct {
		quantile string
		value    float64
	}{
		{"0.5", ms(summary.P50)},
		{"0.95", ms(summary.P95)},
		{"0.99", ms(summary.P99)},
		{"min", ms(summary.Min)},
		{"max", ms(summary.Max)},
		{"mean", ms(summary.Mean)},
	}
	for _, l := range latency {
		samples = append(samples, Sample{
			Name:   "request_duration_ms",
			Help:   "Request latency in milliseconds",
			Type:   Gauge,
			Value:  l.value,
			Labels: map[string]string{"quantile": l.quantile},
		})
	}

	codes := make([]int, 0, len(summary.StatusCodes))
	for code := range summary.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		samples = append(samples, Sample{
			Name:   "requests_by_status_total",
			Help:   "Requests by HTTP status code",
			Type:   Counter,
			Value:  float64(summary.StatusCodes[code]),
			Labels: map[string]string{"status": strconv.Itoa(code)},
		})
	}

	kinds := make([]string, 0, len(summary.ErrorKinds))
	for kind := range summary.ErrorKinds {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		samples = append(samples, Sample{
			Name:   "errors_by_kind_total",
			Help:   "Failed requests by error kind",
			Type:   Counter,
			Value:  float64(summary.ErrorKinds[http.ErrorKind(kind)]),
			Labels: map[string]string{"kind": kind},
		})
	}

	return samples
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
