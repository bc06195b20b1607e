package pipeline

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// TimingSnapshot aggregates recent per-file durations of one stage.
type TimingSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// Timings tracks how long each stage spends per file, within a rolling window.
type Timings struct {
	mu      sync.Mutex
	samples map[Stage][]sample
	maxAge  time.Duration
}

func NewTimings(maxAge time.Duration) *Timings {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Timings{
		samples: make(map[Stage][]sample),
		maxAge:  maxAge,
	}
}

// Record adds one file's duration for stage.
func (t *Timings) Record(stage Stage, d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)
	t.samples[stage] = append(t.samples[stage], sample{timestamp: now, durationMs: ms})
}

// Snapshot returns the aggregate of every stage with recent samples.
func (t *Timings) Snapshot() map[Stage]TimingSnapshot {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)
	out := make(map[Stage]TimingSnapshot, len(t.samples))
	for stage, samples := range t.samples {
		values := make([]int64, 0, len(samples))
		var sum int64
		for _, sm := range samples {
			values = append(values, sm.durationMs)
			sum += sm.durationMs
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

		out[stage] = TimingSnapshot{
			Count: len(values),
			MinMs: values[0],
			MaxMs: values[len(values)-1],
			AvgMs: float64(sum) / float64(len(values)),
			P50Ms: percentile(values, 50),
			P95Ms: percentile(values, 95),
		}
	}
	return out
}

func (t *Timings) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.maxAge)
	for stage, samples := range t.samples {
		kept := samples[:0]
		for _, sm := range samples {
			if !sm.timestamp.Before(cutoff) {
				kept = append(kept, sm)
			}
		}
		if len(kept) == 0 {
			delete(t.samples, stage)
			continue
		}
		t.samples[stage] = kept
	}
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
