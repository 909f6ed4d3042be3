package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitfetch/packages/bench"
	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

// DataDogExporter submits summaries to the DataDog series API using the
// hitfetch client, so the push shares its DNS cache and error kinds.
type DataDogExporter struct {
	apiKey   string
	site     string // e.g., "datadoghq.com", "datadoghq.eu"
	endpoint string
	tags     []string
	prefix   string
	timeout  time.Duration
	client   *http.Client
	now      func() time.Time
}

// DataDogOption is a functional option for DataDogExporter
type DataDogOption func(*DataDogExporter)

// WithDataDogAPIKey sets the DataDog API key
func WithDataDogAPIKey(apiKey string) DataDogOption {
	return func(d *DataDogExporter) {
		d.apiKey = apiKey
	}
}

// WithDataDogSite sets the DataDog site (e.g., "datadoghq.com", "datadoghq.eu")
func WithDataDogSite(site string) DataDogOption {
	return func(d *DataDogExporter) {
		d.site = site
	}
}

// WithDataDogEndpoint replaces the series URL derived from the site.
func WithDataDogEndpoint(url string) DataDogOption {
	return func(d *DataDogExporter) {
		d.endpoint = url
	}
}

// WithDataDogTags sets additional tags for all metrics
func WithDataDogTags(tags []string) DataDogOption {
	return func(d *DataDogExporter) {
		d.tags = tags
	}
}

// WithDataDogPrefix sets a prefix for metric names
func WithDataDogPrefix(prefix string) DataDogOption {
	return func(d *DataDogExporter) {
		d.prefix = prefix
	}
}

func WithDataDogClient(client *http.Client) DataDogOption {
	return func(d *DataDogExporter) {
		d.client = client
	}
}

// NewDataDogExporter creates a new DataDog metrics exporter. The API key
// falls back to DD_API_KEY.
func NewDataDogExporter(opts ...DataDogOption) *DataDogExporter {
	d := &DataDogExporter{
		site:    "datadoghq.com",
		prefix:  "hitfetch.bench",
		timeout: 10 * time.Second,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.apiKey == "" {
		d.apiKey = os.Getenv("DD_API_KEY")
	}
	if d.endpoint == "" {
		d.endpoint = fmt.Sprintf("https://api.%s/api/v1/series", d.site)
	}
	if d.client == nil {
		d.client = http.NewClient()
	}
	return d
}

type datadogMetric struct {
	Metric string   `json:"metric"`
	Type   string   `json:"type"`
	Points [][]any  `json:"points"`
	Tags   []string `json:"tags,omitempty"`
}

type datadogPayload struct {
	Series []datadogMetric `json:"series"`
}

func (d *DataDogExporter) Export(ctx context.Context, target string, summary *bench.Summary) error {
	if d.apiKey == "" {
		return fmt.Errorf("DataDog API key not configured")
	}

	now := float64(d.now().Unix())
	series := make([]datadogMetric, 0)
	for _, s := range Samples(summary) {
		tags := append([]string{"target:" + target}, d.tags...)
		for k, v := range s.Labels {
			tags = append(tags, k+":"+v)
		}
		kind := "gauge"
		if s.Type == Counter {
			kind = "count"
		}
		series = append(series, datadogMetric{
			Metric: d.prefix + "." + s.Name,
			Type:   kind,
			Points: [][]any{{now, s.Value}},
			Tags:   tags,
		})
	}

	req := http.NewRequestConfig(d.endpoint).
		SetHeader("DD-API-KEY", d.apiKey).
		SetTimeout(d.timeout)
	req.Body = datadogPayload{Series: series}

	_, err := d.client.Do(ctx, *req)
	if err != nil && !errors.Is(err, errAccepted) {
		return fmt.Errorf("failed to send metrics: %w", err)
	}
	return nil
}

// The series API answers 202 Accepted, which the client reports as an
// unexpected status.
var errAccepted = &http.Error{Kind: http.KindUnexpectedStatus, StatusCode: 202}
