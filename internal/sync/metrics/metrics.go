package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the sync engine.
type Metrics struct {
	// Poll cycles by endpoint and result ("completed", "aborted").
	Cycles *prometheus.CounterVec

	// Feed entries by endpoint and terminal state.
	Entries *prometheus.CounterVec

	// Faults by kind.
	Faults *prometheus.CounterVec

	CycleDuration prometheus.Histogram
	EntryDuration prometheus.Histogram

	// CandidateScore tracks heuristic match confidence distribution.
	CandidateScore prometheus.Histogram
}

// New creates a Metrics instance with all sync engine metrics registered.
func New() *Metrics {
	return &Metrics{
		Cycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_sync_cycles_total",
			Help: "Total poll cycles by endpoint and result",
		}, []string{"endpoint", "result"}),

		Entries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_sync_entries_total",
			Help: "Total feed entries processed by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		Faults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carelink_sync_faults_total",
			Help: "Total faults by kind",
		}, []string{"kind"}),

		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "carelink_sync_cycle_duration_seconds",
			Help:    "Duration of full poll cycles including entry processing",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		EntryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "carelink_sync_entry_duration_seconds",
			Help:    "Duration of single entry processing",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		CandidateScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "carelink_match_candidate_score",
			Help:    "Confidence scores assigned to heuristic match candidates",
			Buckets: []float64{0.25, 0.5, 0.75, 1, 1.25, 1.5, 2, 3},
		}),
	}
}

// IncrementCycle records a cycle result for an endpoint.
func (m *Metrics) IncrementCycle(endpoint, result string) {
	if m != nil {
		m.Cycles.WithLabelValues(endpoint, result).Inc()
	}
}

// IncrementEntry records an entry outcome for an endpoint.
func (m *Metrics) IncrementEntry(endpoint, outcome string) {
	if m != nil {
		m.Entries.WithLabelValues(endpoint, outcome).Inc()
	}
}

// IncrementFault records a fault by kind.
func (m *Metrics) IncrementFault(kind string) {
	if m != nil {
		m.Faults.WithLabelValues(kind).Inc()
	}
}

// ObserveCycleDuration records a full cycle duration.
func (m *Metrics) ObserveCycleDuration(d time.Duration) {
	if m != nil {
		m.CycleDuration.Observe(d.Seconds())
	}
}

// ObserveEntryDuration records a single entry duration.
func (m *Metrics) ObserveEntryDuration(d time.Duration) {
	if m != nil {
		m.EntryDuration.Observe(d.Seconds())
	}
}

// ObserveCandidateScore records one heuristic candidate score.
func (m *Metrics) ObserveCandidateScore(score float64) {
	if m != nil {
		m.CandidateScore.Observe(score)
	}
}
