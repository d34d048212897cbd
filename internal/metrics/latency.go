package metrics

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
	status     string
}

// Snapshot is a point-in-time aggregate of comparison latency samples.
type Snapshot struct {
	Count    int            `json:"count"`
	MinMs    int64          `json:"min_ms"`
	MaxMs    int64          `json:"max_ms"`
	AvgMs    float64        `json:"avg_ms"`
	P50Ms    float64        `json:"p50_ms"`
	P95Ms    float64        `json:"p95_ms"`
	P99Ms    float64        `json:"p99_ms"`
	Outcomes map[string]int `json:"outcomes"`
}

// Window tracks recent comparison latencies within a rolling window.
type Window struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewWindow(maxAge time.Duration) *Window {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Window{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

func (w *Window) Record(durationMs int64, status string) {
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.samples = append(w.samples, sample{
		timestamp:  now,
		durationMs: durationMs,
		status:     status,
	})
}

func (w *Window) Snapshot() Snapshot {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	snap := Snapshot{Outcomes: map[string]int{}}
	if len(w.samples) == 0 {
		return snap
	}

	values := make([]int64, 0, len(w.samples))
	var sum int64
	for _, sm := range w.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		snap.Outcomes[sm.status]++
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	writeIdx := 0
	for _, sm := range w.samples {
		if !sm.timestamp.Before(cutoff) {
			w.samples[writeIdx] = sm
			writeIdx++
		}
	}
	w.samples = w.samples[:writeIdx]
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
