package telemetry

import (
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
)

// LatencySummary is a snapshot of per-pair wall-clock times
type LatencySummary struct {
	Count int64
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// LatencyRecorder tracks per-pair durations in milliseconds, up to one hour.
// Safe for concurrent use.
type LatencyRecorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{hist: hdrhistogram.New(1, int64(time.Hour/time.Millisecond), 3)}
}

// Record adds one duration; values past the range are clamped to it
func (r *LatencyRecorder) Record(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.hist.RecordValue(ms); err != nil {
		r.hist.RecordValue(r.hist.HighestTrackableValue())
	}
}

// Summary returns the current quantiles
func (r *LatencyRecorder) Summary() LatencySummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	return LatencySummary{
		Count: r.hist.TotalCount(),
		Mean:  time.Duration(r.hist.Mean() * float64(time.Millisecond)),
		P50:   ms(r.hist.ValueAtQuantile(50)),
		P90:   ms(r.hist.ValueAtQuantile(90)),
		P99:   ms(r.hist.ValueAtQuantile(99)),
		Max:   ms(r.hist.Max()),
	}
}
