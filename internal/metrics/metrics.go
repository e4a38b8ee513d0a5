// Package metrics exposes Prometheus counters for update, revert and backup
// operations.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
)

const namespace = "themeupdater"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry    *prometheus.Registry
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	backupBytes prometheus.Gauge
	updateAvail prometheus.Gauge
}

// New creates a Metrics with its own registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Finished operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation wall time by kind.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"op"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful operation by kind.",
		}, []string{"op"}),
		backupBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_size_bytes",
			Help:      "Size of the current backup archive, 0 when there is none.",
		}),
		updateAvail: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "update_available",
			Help:      "1 when the last check found a newer remote version.",
		}),
	}

	m.registry.MustRegister(
		m.operations,
		m.duration,
		m.lastSuccess,
		m.backupBytes,
		m.updateAvail,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records a finished operation.
func (m *Metrics) Observe(ctx context.Context, op *store.Operation) {
	outcome := "success"
	if !op.Success {
		outcome = "failure"
		if op.Code != "" {
			outcome = op.Code
		}
	}
	m.operations.WithLabelValues(op.Kind, outcome).Inc()
	m.duration.WithLabelValues(op.Kind).Observe(op.Duration().Seconds())
	if op.Success {
		m.lastSuccess.WithLabelValues(op.Kind).Set(float64(op.FinishedAt.Unix()))
	}
}

// SetBackupSize records the current backup size.
func (m *Metrics) SetBackupSize(bytes int64) {
	m.backupBytes.Set(float64(bytes))
}

// SetUpdateAvailable records the result of the last version check.
func (m *Metrics) SetUpdateAvailable(available bool) {
	if available {
		m.updateAvail.Set(1)
		return
	}
	m.updateAvail.Set(0)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
