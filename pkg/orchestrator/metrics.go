package orchestrator

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes migration state per database on its own Prometheus
// registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pending  *prometheus.GaugeVec
	applied  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the gatekeeper metrics and registers them with a new
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gatekeeper",
			Name:      "pending_migrations",
			Help:      "Number of migrations not applied yet",
		}, []string{"database"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeeper",
			Name:      "migrations_applied_total",
			Help:      "Total number of migrations applied",
		}, []string{"database"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gatekeeper",
			Name:      "migrate_duration_seconds",
			Help:      "Duration of migrate runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database"}),
	}

	reg.MustRegister(m.pending)
	reg.MustRegister(m.applied)
	reg.MustRegister(m.duration)

	return m
}

// Pending records the number of pending migrations of a database.
func (m *Metrics) Pending(database string, n int) {
	if m == nil {
		return
	}

	m.pending.WithLabelValues(database).Set(float64(n))
}

// Applied records a migrate run that applied n migrations.
func (m *Metrics) Applied(database string, n int, took time.Duration) {
	if m == nil {
		return
	}

	m.applied.WithLabelValues(database).Add(float64(n))
	m.duration.WithLabelValues(database).Observe(took.Seconds())
	m.pending.WithLabelValues(database).Set(0)
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
