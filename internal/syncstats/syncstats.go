// Package syncstats collects bilateral synchronisation timing samples and
// reports mean/median/min/max/p95/p99 against the 10ms vCR latency
// target. A single ring of Sample values holds all three metrics per
// entry, so insertion is all-or-nothing and the network/execution/total
// series can never diverge in length.
package syncstats

import (
	"sort"
	"sync"
	"time"

	"github.com/bluebuzzah/firmware/internal/ringbuffer"
)

// DefaultMaxSamples is the default ring buffer capacity.
const DefaultMaxSamples = 100

// TargetLatencyUs is the vCR therapy total-latency compliance target.
const TargetLatencyUs = 10000

// Sample is one (network_latency, execution_time, total_latency) triple,
// all in microseconds.
type Sample struct {
	NetworkLatencyUs float64
	ExecutionTimeUs  float64
	TotalLatencyUs   float64
}

// Stats collects Samples into a fixed-capacity ring buffer.
type Stats struct {
	mu             sync.Mutex
	buf            *ringbuffer.Buffer[Sample]
	sampleCount    int
	lastSampleTime time.Time
	nowFn          func() time.Time
}

// New creates a Stats collector capped at maxSamples.
func New(maxSamples int) *Stats {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Stats{
		buf:   ringbuffer.New[Sample](maxSamples),
		nowFn: time.Now,
	}
}

// SetClock overrides the time source (for tests).
func (s *Stats) SetClock(nowFn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = nowFn
}

// AddSample appends a sample, evicting the oldest sample on overflow.
// Insertion is a single atomic push of all three metrics together, so the
// buffers can never diverge.
func (s *Stats) AddSample(networkLatencyUs, executionTimeUs, totalLatencyUs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Push(Sample{
		NetworkLatencyUs: networkLatencyUs,
		ExecutionTimeUs:  executionTimeUs,
		TotalLatencyUs:   totalLatencyUs,
	})
	s.sampleCount++
	s.lastSampleTime = s.nowFn()
}

// Len returns the number of samples currently buffered.
func (s *Stats) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// MetricStats holds mean/median/min/max/p95/p99 for one metric.
type MetricStats struct {
	Mean        float64
	Median      float64
	Min         float64
	Max         float64
	P95         float64
	P99         float64
	SampleCount int
}

// Report summarises all three tracked metrics.
type Report struct {
	Network       MetricStats
	Execution     MetricStats
	Total         MetricStats
	SampleCount   int
	BufferLen     int
	BufferCap     int
	LastSampleAge time.Duration

	// vCR compliance against the 10ms total-latency target.
	MeanCompliant bool
	P95Compliant  bool
	P99Compliant  bool
}

// Report computes the current statistics. The second return value is false
// if no samples have been collected yet.
func (s *Stats) Report() (Report, bool) {
	s.mu.Lock()
	samples := s.buf.Slice()
	sampleCount := s.sampleCount
	bufCap := s.buf.Cap()
	lastSampleTime := s.lastSampleTime
	now := s.nowFn()
	s.mu.Unlock()

	if len(samples) == 0 {
		return Report{}, false
	}

	network := make([]float64, len(samples))
	execution := make([]float64, len(samples))
	total := make([]float64, len(samples))
	for i, sample := range samples {
		network[i] = sample.NetworkLatencyUs
		execution[i] = sample.ExecutionTimeUs
		total[i] = sample.TotalLatencyUs
	}

	networkStats := summarize(network)
	executionStats := summarize(execution)
	totalStats := summarize(total)

	return Report{
		Network:       networkStats,
		Execution:     executionStats,
		Total:         totalStats,
		SampleCount:   sampleCount,
		BufferLen:     len(samples),
		BufferCap:     bufCap,
		LastSampleAge: now.Sub(lastSampleTime),
		MeanCompliant: totalStats.Mean < TargetLatencyUs,
		P95Compliant:  totalStats.P95 < TargetLatencyUs,
		P99Compliant:  totalStats.P99 < TargetLatencyUs,
	}, true
}

// Reset clears all statistics.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.sampleCount = 0
	s.lastSampleTime = time.Time{}
}

func summarize(values []float64) MetricStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	stats := MetricStats{
		Mean:        sum / float64(n),
		Median:      sorted[n/2],
		Min:         sorted[0],
		Max:         sorted[n-1],
		SampleCount: n,
	}

	// Nearest-rank percentiles: the ceil(p*n)-th smallest sample.
	if n >= 20 {
		stats.P95 = sorted[(n*95+99)/100-1]
	} else {
		stats.P95 = stats.Max
	}
	if n >= 100 {
		stats.P99 = sorted[(n*99+99)/100-1]
	} else {
		stats.P99 = stats.Max
	}
	return stats
}
