// Package metrics tracks sync pass latency and outcome counters.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// LatencyTracker keeps a sliding window of durations for percentile stats.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 500
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record records a latency measurement.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		// Drop the oldest 10% at once to avoid shifting on every sample
		drop := lt.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		lt.samples = append(lt.samples[:0], lt.samples[drop:]...)
	}
	lt.samples = append(lt.samples, d.Microseconds())
}

// Stats returns latency statistics including percentiles.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	sorted := make([]int64, len(lt.samples))
	copy(sorted, lt.samples)
	lt.mu.Unlock()

	n := len(sorted)
	if n == 0 {
		return LatencyStats{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	pct := func(p float64) time.Duration {
		return time.Duration(sorted[int(float64(n-1)*p)]) * time.Microsecond
	}

	return LatencyStats{
		Count: n,
		Min:   time.Duration(sorted[0]) * time.Microsecond,
		Max:   time.Duration(sorted[n-1]) * time.Microsecond,
		Avg:   time.Duration(sum/int64(n)) * time.Microsecond,
		P50:   pct(0.50),
		P95:   pct(0.95),
		P99:   pct(0.99),
	}
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":  s.Count,
		"min_ms": ms(s.Min),
		"max_ms": ms(s.Max),
		"avg_ms": ms(s.Avg),
		"p50_ms": ms(s.P50),
		"p95_ms": ms(s.P95),
		"p99_ms": ms(s.P99),
	}
}

// =============================================================================
// Sync Metrics
// =============================================================================

// SyncMetrics aggregates pass results across all sessions.
type SyncMetrics struct {
	passes  atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
	latency *LatencyTracker
}

func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{latency: NewLatencyTracker(500)}
}

// RecordPass records a finished pass.
func (m *SyncMetrics) RecordPass(d time.Duration, err error) {
	m.passes.Add(1)
	if err != nil {
		m.failed.Add(1)
	}
	m.latency.Record(d)
}

// RecordSkip records a trigger dropped because a pass was in flight.
func (m *SyncMetrics) RecordSkip() {
	m.skipped.Add(1)
}

func (m *SyncMetrics) Snapshot() map[string]any {
	return map[string]any{
		"passes":  m.passes.Load(),
		"failed":  m.failed.Load(),
		"skipped": m.skipped.Load(),
		"latency": m.latency.Stats().ToMap(),
	}
}
