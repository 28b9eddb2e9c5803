package batch

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
)

// Outcome labels for requests that did not fail with an engine error.
const (
	OutcomeSuccess = "Success"
	OutcomeSkipped = "Skipped"
)

// latency bounds in microseconds: 1us to 10 minutes
const (
	minLatencyUs = 1
	maxLatencyUs = 600_000_000
)

// Metrics aggregates batch results. It is safe for concurrent use.
type Metrics struct {
	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
	outcomes  map[string]int64
	total     int64
	startTime time.Time
	endTime   time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		outcomes:  make(map[string]int64),
	}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	m.endTime = time.Now()
	m.mu.Unlock()
}

// Record adds one executed request.
func (m *Metrics) Record(duration time.Duration, err error) {
	latencyUs := duration.Microseconds()
	if latencyUs < minLatencyUs {
		latencyUs = minLatencyUs
	}
	if latencyUs > maxLatencyUs {
		latencyUs = maxLatencyUs
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.outcomes[Outcome(err)]++
	_ = m.histogram.RecordValue(latencyUs)
}

// Skip counts a request that was never started.
func (m *Metrics) Skip() {
	m.mu.Lock()
	m.total++
	m.outcomes[OutcomeSkipped]++
	m.mu.Unlock()
}

// Outcome names the result of one request: Success, or the error kind.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if kind := apperror.KindOf(err); kind != "" {
		return string(kind)
	}
	return string(apperror.HttpError)
}

// Summary is the aggregate view of a batch run.
type Summary struct {
	Duration  time.Duration    `json:"-"`
	Total     int64            `json:"total"`
	Succeeded int64            `json:"succeeded"`
	Failed    int64            `json:"failed"`
	Outcomes  map[string]int64 `json:"outcomes"`
	P50       time.Duration    `json:"-"`
	P95       time.Duration    `json:"-"`
	P99       time.Duration    `json:"-"`
	Max       time.Duration    `json:"-"`
	Mean      time.Duration    `json:"-"`
}

func (m *Metrics) Summary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	outcomes := make(map[string]int64, len(m.outcomes))
	for k, v := range m.outcomes {
		outcomes[k] = v
	}
	succeeded := outcomes[OutcomeSuccess]

	s := &Summary{
		Duration:  duration,
		Total:     m.total,
		Succeeded: succeeded,
		Failed:    m.total - succeeded - outcomes[OutcomeSkipped],
		Outcomes:  outcomes,
	}
	if m.histogram.TotalCount() > 0 {
		s.P50 = time.Duration(m.histogram.ValueAtQuantile(50)) * time.Microsecond
		s.P95 = time.Duration(m.histogram.ValueAtQuantile(95)) * time.Microsecond
		s.P99 = time.Duration(m.histogram.ValueAtQuantile(99)) * time.Microsecond
		s.Max = time.Duration(m.histogram.Max()) * time.Microsecond
		s.Mean = time.Duration(m.histogram.Mean()) * time.Microsecond
	}
	return s
}
