// Package metrics records datastore outcomes as Prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/and161185/socialkeeper/internal/model"
)

// Recorder receives datastore events.
type Recorder interface {
	// RecordOperation observes the duration of a facade operation.
	RecordOperation(op string, d time.Duration)
	// RecordBackendError counts a driver error surfaced by an operation.
	RecordBackendError(op string)
	// RecordValueWrite counts a time-series write by result: inserted or duplicate.
	RecordValueWrite(result string)
	// RecordReconcile counts the statements of one stream reconcile.
	RecordReconcile(stats model.ReconcileStats)
	// RecordStatus counts liveness probe results.
	RecordStatus(status string)
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds the Prometheus collectors of the datastore.
type Metrics struct {
	OperationDuration *prometheus.HistogramVec
	BackendErrors     *prometheus.CounterVec
	ValueWrites       *prometheus.CounterVec
	StreamChanges     *prometheus.CounterVec
	StatusProbes      *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns the process-wide Prometheus recorder, or a no-op one when disabled.
// Collectors are registered once on the default registry.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}
	once.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datastore_operation_duration_seconds",
				Help:    "Duration of datastore operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		BackendErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datastore_backend_errors_total",
				Help: "Total number of backend errors by operation",
			},
			[]string{"op"},
		),
		ValueWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datastore_value_writes_total",
				Help: "Total number of time-series writes",
			},
			[]string{"result"}, // inserted, duplicate
		),
		StreamChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datastore_stream_cache_changes_total",
				Help: "Total number of stream cache rows changed by reconciliation",
			},
			[]string{"change"}, // added, updated, removed
		),
		StatusProbes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datastore_status_probes_total",
				Help: "Total number of liveness probes by result",
			},
			[]string{"status"},
		),
	}
}

// RecordOperation observes the duration of a facade operation.
func (m *Metrics) RecordOperation(op string, d time.Duration) {
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordBackendError counts a driver error surfaced by an operation.
func (m *Metrics) RecordBackendError(op string) {
	m.BackendErrors.WithLabelValues(op).Inc()
}

// RecordValueWrite counts a time-series write.
func (m *Metrics) RecordValueWrite(result string) {
	m.ValueWrites.WithLabelValues(result).Inc()
}

// RecordReconcile counts the statements of one stream reconcile.
func (m *Metrics) RecordReconcile(stats model.ReconcileStats) {
	m.StreamChanges.WithLabelValues("added").Add(float64(stats.Added))
	m.StreamChanges.WithLabelValues("updated").Add(float64(stats.Updated))
	m.StreamChanges.WithLabelValues("removed").Add(float64(stats.Removed))
}

// RecordStatus counts liveness probe results.
func (m *Metrics) RecordStatus(status string) {
	m.StatusProbes.WithLabelValues(status).Inc()
}
