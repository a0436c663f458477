package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every collector.
const Namespace = "companion"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PassesTotal       *prometheus.CounterVec
	PassDuration      prometheus.Histogram
	StageFailures     *prometheus.CounterVec
	FilteredTotal     prometheus.Counter
	ForcedRests       prometheus.Counter
	LevelUpsQueued    prometheus.Counter
	WriterFlushes     *prometheus.CounterVec
	WriterRetries     prometheus.Counter
	OfflineQueueDepth prometheus.Gauge
	LedgerPruned      prometheus.Counter
}

// New creates collectors on the global Registerer.
func New() *Metrics {
	return NewWithRegistry(GetRegisterer())
}

// NewWithRegistry creates collectors on registerer.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		PassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "passes_total",
			Help:      "Update passes by result (ok/rejected)",
		}, []string{"result"}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one update pass",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that failed and were skipped",
		}, []string{"stage"}),
		FilteredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "filtered_updates_total",
			Help:      "Updates trimmed by the idempotency filter",
		}),
		ForcedRests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "forced_rests_total",
			Help:      "Forced rest prompts raised",
		}),
		LevelUpsQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "level_ups_queued_total",
			Help:      "Level-ups queued for confirmation",
		}),
		WriterFlushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "writer",
			Name:      "flushes_total",
			Help:      "Dirty set flushes by result (ok/failed/queued)",
		}, []string{"result"}),
		WriterRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "writer",
			Name:      "retries_total",
			Help:      "Flush attempts retried after a failure",
		}),
		OfflineQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "writer",
			Name:      "offline_queue_depth",
			Help:      "Dirty sets waiting for replay",
		}),
		LedgerPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ledger",
			Name:      "pruned_total",
			Help:      "Transaction records removed by retention",
		}),
	}
}

// ObservePass records one finished pass.
func (m *Metrics) ObservePass(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(result).Inc()
	m.PassDuration.Observe(d.Seconds())
}

// StageFailed counts a skipped stage.
func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

// Filtered counts a trimmed update.
func (m *Metrics) Filtered() {
	if m == nil {
		return
	}
	m.FilteredTotal.Inc()
}

// ForcedRest counts a forced rest prompt.
func (m *Metrics) ForcedRest() {
	if m == nil {
		return
	}
	m.ForcedRests.Inc()
}

// LevelUpQueued counts a queued level-up.
func (m *Metrics) LevelUpQueued() {
	if m == nil {
		return
	}
	m.LevelUpsQueued.Inc()
}

// Flush counts a writer flush outcome.
func (m *Metrics) Flush(result string) {
	if m == nil {
		return
	}
	m.WriterFlushes.WithLabelValues(result).Inc()
}

// Retry counts a writer retry.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.WriterRetries.Inc()
}

// SetOfflineQueue sets the offline queue depth.
func (m *Metrics) SetOfflineQueue(n int) {
	if m == nil {
		return
	}
	m.OfflineQueueDepth.Set(float64(n))
}

// Pruned adds n pruned ledger records.
func (m *Metrics) Pruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LedgerPruned.Add(float64(n))
}
