// Package telemetry collects batch metrics, latency quantiles and failure
// reports for an alignment run.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pair outcomes used as the "outcome" label
const (
	OutcomeSucceeded     = "succeeded"
	OutcomeLowConfidence = "low_confidence"
	OutcomeSkipped       = "skipped"
)

// Metrics holds the collectors for one batch. Each batch gets its own
// registry so results can be written as a node-exporter textfile.
type Metrics struct {
	Registry *prometheus.Registry

	pairs        *prometheus.CounterVec
	stageSeconds *prometheus.HistogramVec
	confidence   prometheus.Histogram
	acceptedRank prometheus.Histogram
}

// NewMetrics registers the batch collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		pairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slidealign_pairs_total",
			Help: "Number of processed pairs by outcome.",
		}, []string{"outcome"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slidealign_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2.5, 10),
		}, []string{"stage"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slidealign_confidence",
			Help:    "Final mask IoU of produced transforms.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		acceptedRank: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slidealign_accepted_rank",
			Help:    "Rank of the orientation hypothesis accepted by translation estimation.",
			Buckets: prometheus.LinearBuckets(0, 1, 8),
		}),
	}
	m.Registry.MustRegister(m.pairs, m.stageSeconds, m.confidence, m.acceptedRank)
	return m
}

// ObserveOutcome counts one finished pair
func (m *Metrics) ObserveOutcome(outcome string) {
	m.pairs.WithLabelValues(outcome).Inc()
}

// ObserveStage records the duration of one pipeline stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveResult records the quality figures of a produced transform
func (m *Metrics) ObserveResult(confidence float64, acceptedRank int) {
	m.confidence.Observe(confidence)
	m.acceptedRank.Observe(float64(acceptedRank))
}

// WriteTextfile dumps every collector in Prometheus text format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
