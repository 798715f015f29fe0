package perf

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stage identifies one measured segment of the tick pipeline.
type Stage string

const (
	StageBookApply    Stage = "book_apply"
	StageTriggerScan  Stage = "trigger_scan"
	StageLedgerUpdate Stage = "ledger_update"
	StageEndToEnd     Stage = "end_to_end"
)

// Stages lists all measured stages in pipeline order.
var Stages = []Stage{StageBookApply, StageTriggerScan, StageLedgerUpdate, StageEndToEnd}

// Sample is one latency measurement.
type Sample struct {
	Stage        Stage
	Millis       float64
	TsUnixMillis int64
}

// Stats summarizes the rolling window for one stage. All values are in
// milliseconds.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_ms"`
	Median float64 `json:"median_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
}

// Monitor keeps a bounded rolling window of latency samples per stage and
// serves percentile statistics over them.
type Monitor struct {
	mu      sync.Mutex
	window  int
	samples map[Stage][]Sample
	logger  *zap.Logger
}

// NewMonitor creates a monitor retaining up to window samples per stage.
func NewMonitor(window int, logger *zap.Logger) *Monitor {
	if window <= 0 {
		window = 1000
	}
	return &Monitor{
		window:  window,
		samples: make(map[Stage][]Sample),
		logger:  logger,
	}
}

// Record adds one measurement for the given stage.
func (m *Monitor) Record(stage Stage, d time.Duration, tsUnixMillis int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := append(m.samples[stage], Sample{
		Stage:        stage,
		Millis:       float64(d) / float64(time.Millisecond),
		TsUnixMillis: tsUnixMillis,
	})
	if len(s) > m.window {
		s = s[len(s)-m.window:]
	}
	m.samples[stage] = s
}

// Stats computes summary statistics for every stage with at least one
// sample.
func (m *Monitor) Stats() map[Stage]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Stage]Stats, len(m.samples))
	for stage, samples := range m.samples {
		if len(samples) == 0 {
			continue
		}
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Millis
		}
		out[stage] = Summarize(values)
	}
	return out
}

// Summarize computes summary statistics over a set of latency values in
// milliseconds. The input slice is not modified.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return Stats{
		Count:  len(sorted),
		Mean:   sum / float64(len(sorted)),
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// Recent returns up to n most recent samples for a stage, oldest first.
func (m *Monitor) Recent(stage Stage, n int) []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := m.samples[stage]
	start := 0
	if n > 0 && len(samples) > n {
		start = len(samples) - n
	}
	out := make([]Sample, len(samples)-start)
	copy(out, samples[start:])
	return out
}

// CheckThresholds reports, per stage, whether the p95 latency is within the
// given threshold in milliseconds. Stages without samples are omitted.
func (m *Monitor) CheckThresholds(thresholds map[Stage]float64) map[Stage]bool {
	stats := m.Stats()
	out := make(map[Stage]bool, len(thresholds))
	for stage, limit := range thresholds {
		if s, ok := stats[stage]; ok {
			out[stage] = s.P95 <= limit
		}
	}
	return out
}

// LogStats periodically logs the current statistics until ctx is cancelled.
func (m *Monitor) LogStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for stage, s := range m.Stats() {
				m.logger.Info("latency stats",
					zap.String("stage", string(stage)),
					zap.Int("count", s.Count),
					zap.Float64("mean_ms", s.Mean),
					zap.Float64("median_ms", s.Median),
					zap.Float64("p95_ms", s.P95),
					zap.Float64("p99_ms", s.P99),
					zap.Float64("min_ms", s.Min),
					zap.Float64("max_ms", s.Max),
				)
			}
		}
	}
}

// percentile returns the p-th percentile of sorted values using nearest-rank
// interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	low := int(rank)
	high := low + 1
	if high >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(low)
	return sorted[low]*(1-frac) + sorted[high]*frac
}
