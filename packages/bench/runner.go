package bench

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

// Runner issues the same request over and over
type Runner struct {
	config   *Config
	request  http.RequestConfig
	client   *http.Client
	metrics  *Metrics
	reporter *Reporter
	logger   logrus.FieldLogger
	interval time.Duration
}

type RunnerOption func(*Runner)

func WithHTTPClient(client *http.Client) RunnerOption {
	return func(r *Runner) {
		r.client = client
	}
}

func WithReporter(reporter *Reporter) RunnerOption {
	return func(r *Runner) {
		r.reporter = reporter
	}
}

func WithLogger(l logrus.FieldLogger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithProgressInterval sets how often the live display is refreshed
func WithProgressInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.interval = d
	}
}

func NewRunner(config *Config, request http.RequestConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		config:   config,
		request:  request,
		metrics:  NewMetrics(),
		interval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = http.NewClient()
	}
	if r.reporter == nil {
		r.reporter = NewReporter()
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	return r
}

// Result holds the final result of a run
type Result struct {
	Summary    *Summary
	Thresholds []ThresholdResult
	Passed     bool
}

// HasThresholdFailures returns true if any thresholds failed
func (r *Result) HasThresholdFailures() bool {
	return !r.Passed
}

// Run validates the request once, then repeats it until the duration or count
// is exhausted. A request config that fails validation aborts the run before
// anything is sent.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := http.Validate(r.request); err != nil {
		return nil, err
	}

	r.reporter.Header(r.request.URL, r.config)

	if r.config.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Duration)
		defer cancel()
	}

	r.metrics.Start()
	progressDone := make(chan struct{})
	progressStopped := make(chan struct{})
	go r.progressLoop(progressDone, progressStopped)

	r.loop(ctx)

	r.metrics.Stop()
	close(progressDone)
	<-progressStopped
	r.reporter.ClearProgress()

	summary := r.metrics.GetSummary()
	var thresholds []ThresholdResult
	if r.config.Thresholds.HasThresholds() {
		thresholds = EvaluateThresholds(summary, r.config.Thresholds)
	}
	r.reporter.Summary(summary, thresholds)

	passed := true
	for _, tr := range thresholds {
		if !tr.Passed {
			passed = false
			break
		}
	}

	r.logger.WithFields(logrus.Fields{
		"requests": summary.TotalRequests,
		"errors":   summary.ErrorCount,
		"p95":      summary.P95,
	}).Debug("bench finished")

	return &Result{Summary: summary, Thresholds: thresholds, Passed: passed}, nil
}

func (r *Runner) loop(ctx context.Context) {
	scheduler := NewScheduler(r.config)
	var wg sync.WaitGroup

	for scheduler.Next(ctx) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer scheduler.Release()
			r.execute(ctx)
		}()
	}
	wg.Wait()
}

func (r *Runner) execute(ctx context.Context) {
	r.metrics.begin()
	defer r.metrics.end()

	start := time.Now()
	outcome, err := r.client.Do(ctx, r.request)
	duration := time.Since(start)

	// The run's own deadline ending an exchange is not a request failure.
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		r.logger.WithError(err).Debug("bench request failed")
	}
	r.metrics.Record(duration, outcome, err)
}

func (r *Runner) progressLoop(done, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.reporter.Progress(r.metrics.GetCurrentStats(), r.config.Duration)
		}
	}
}
