package bench

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Metrics collects latencies in microseconds and counts outcomes by error kind.
type Metrics struct {
	mu sync.RWMutex

	total    atomic.Int64
	success  atomic.Int64
	failed   atomic.Int64
	timeouts atomic.Int64
	received atomic.Int64
	inFlight atomic.Int32

	histogram *hdrhistogram.Histogram
	byKind    map[http.ErrorKind]int64
	byStatus  map[int]int64

	startTime time.Time
	endTime   time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		byKind:    make(map[http.ErrorKind]int64),
		byStatus:  make(map[int]int64),
	}
}

func (m *Metrics) Start() {
	m.startTime = time.Now()
}

func (m *Metrics) Stop() {
	m.endTime = time.Now()
}

// Record stores one finished exchange. Timeouts count as errors.
func (m *Metrics) Record(duration time.Duration, outcome *http.Outcome, err error) {
	m.total.Add(1)

	latencyUs := duration.Microseconds()
	if latencyUs < minLatencyUs {
		latencyUs = minLatencyUs
	}
	if latencyUs > maxLatencyUs {
		latencyUs = maxLatencyUs
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.histogram.RecordValue(latencyUs)

	if err != nil {
		m.failed.Add(1)
		if http.IsTimeout(err) {
			m.timeouts.Add(1)
		}
		kind := http.KindOf(err)
		if kind == "" {
			kind = "other"
		}
		m.byKind[kind]++
		var herr *http.Error
		if errors.As(err, &herr) && herr.StatusCode != 0 {
			m.byStatus[herr.StatusCode]++
		}
		return
	}

	m.success.Add(1)
	if outcome != nil {
		m.received.Add(outcome.Received)
		m.byStatus[outcome.StatusCode]++
	}
}

func (m *Metrics) begin() { m.inFlight.Add(1) }
func (m *Metrics) end()   { m.inFlight.Add(-1) }

// Summary is the final report of a run
type Summary struct {
	Duration      time.Duration
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64
	TimeoutCount  int64
	BytesReceived int64

	RPS         float64
	SuccessRate float64
	ErrorRate   float64

	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	StdDev time.Duration

	ErrorKinds  map[http.ErrorKind]int64
	StatusCodes map[int]int64
}

func us(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func (m *Metrics) GetSummary() *Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	total := m.total.Load()
	s := &Summary{
		Duration:      duration,
		TotalRequests: total,
		SuccessCount:  m.success.Load(),
		ErrorCount:    m.failed.Load(),
		TimeoutCount:  m.timeouts.Load(),
		BytesReceived: m.received.Load(),
		ErrorKinds:    make(map[http.ErrorKind]int64, len(m.byKind)),
		StatusCodes:   make(map[int]int64, len(m.byStatus)),
	}

	if duration.Seconds() > 0 {
		s.RPS = float64(total) / duration.Seconds()
	}
	if total > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(total)
		s.ErrorRate = float64(s.ErrorCount) / float64(total)
		s.P50 = us(m.histogram.ValueAtQuantile(50))
		s.P95 = us(m.histogram.ValueAtQuantile(95))
		s.P99 = us(m.histogram.ValueAtQuantile(99))
		s.Min = us(m.histogram.Min())
		s.Max = us(m.histogram.Max())
		s.Mean = time.Duration(m.histogram.Mean() * float64(time.Microsecond))
		s.StdDev = time.Duration(m.histogram.StdDev() * float64(time.Microsecond))
	}

	for k, v := range m.byKind {
		s.ErrorKinds[k] = v
	}
	for k, v := range m.byStatus {
		s.StatusCodes[k] = v
	}
	return s
}

// CurrentStats is a live view for the progress display
type CurrentStats struct {
	Elapsed   time.Duration
	Total     int64
	Success   int64
	Errors    int64
	InFlight  int32
	RPS       float64
	ErrorRate float64
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	Max       time.Duration
}

func (m *Metrics) GetCurrentStats() CurrentStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := time.Since(m.startTime)
	total := m.total.Load()
	stats := CurrentStats{
		Elapsed:  elapsed,
		Total:    total,
		Success:  m.success.Load(),
		Errors:   m.failed.Load(),
		InFlight: m.inFlight.Load(),
		P50:      us(m.histogram.ValueAtQuantile(50)),
		P95:      us(m.histogram.ValueAtQuantile(95)),
		P99:      us(m.histogram.ValueAtQuantile(99)),
		Max:      us(m.histogram.Max()),
	}
	if elapsed.Seconds() > 0 {
		stats.RPS = float64(total) / elapsed.Seconds()
	}
	if total > 0 {
		stats.ErrorRate = float64(stats.Errors) / float64(total)
	}
	return stats
}

// EvaluateThresholds checks a summary against t. Only configured thresholds
// produce a result.
func EvaluateThresholds(summary *Summary, t Thresholds) []ThresholdResult {
	var results []ThresholdResult

	latency := func(name string, limit, actual time.Duration) {
		if limit <= 0 {
			return
		}
		results = append(results, ThresholdResult{
			Name:     name,
			Passed:   actual <= limit,
			Expected: "< " + limit.String(),
			Actual:   actual.String(),
		})
	}
	latency("p50", t.P50, summary.P50)
	latency("p95", t.P95, summary.P95)
	latency("p99", t.P99, summary.P99)
	latency("max latency", t.MaxLatency, summary.Max)

	if t.ErrorRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "error rate",
			Passed:   summary.ErrorRate <= t.ErrorRate,
			Expected: "< " + formatPercent(t.ErrorRate),
			Actual:   formatPercent(summary.ErrorRate),
		})
	}

	if t.MinRPS > 0 {
		results = append(results, ThresholdResult{
			Name:     "min RPS",
			Passed:   summary.RPS >= t.MinRPS,
			Expected: "> " + formatFloat(t.MinRPS),
			Actual:   formatFloat(summary.RPS),
		})
	}

	return results
}

func formatPercent(f float64) string {
	return formatFloat(f*100) + "%"
}

func formatFloat(f float64) string {
	if f == float64(int(f)) {
		return strconv.Itoa(int(f))
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
