// Package metrics exposes sync engine instrumentation in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MKhiriev/go-pos-keeper/models"
)

// Recorder records drain activity. Implementations must be safe for
// concurrent use; tenants drain in parallel.
type Recorder interface {
	// RecordOutcome counts one per-entry drain outcome.
	RecordOutcome(kind models.SyncOutcomeKind)

	// SetPending publishes the current outbox size.
	SetPending(n int)

	// ObserveDrain records how long one tenant drain took.
	ObserveDrain(d time.Duration)
}

// Prometheus implements [Recorder] on its own registry, so several engines
// (or tests) never clash on global registration.
type Prometheus struct {
	registry *prometheus.Registry

	outcomes *prometheus.CounterVec
	pending  prometheus.Gauge
	drains   prometheus.Histogram
}

// NewPrometheus creates the collectors under namespace (e.g. "pos") and
// registers them.
func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_outcomes_total",
			Help:      "Outbox entries processed by drains, by outcome.",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Entries currently held in the mutation outbox.",
		}),
		drains: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Duration of a single tenant drain.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	p.registry.MustRegister(p.outcomes, p.pending, p.drains)
	return p
}

func (p *Prometheus) RecordOutcome(kind models.SyncOutcomeKind) {
	p.outcomes.WithLabelValues(string(kind)).Inc()
}

func (p *Prometheus) SetPending(n int) {
	p.pending.Set(float64(n))
}

func (p *Prometheus) ObserveDrain(d time.Duration) {
	p.drains.Observe(d.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Nop is a [Recorder] that discards everything. Used when no metrics
// address is configured.
type Nop struct{}

func (Nop) RecordOutcome(models.SyncOutcomeKind) {}
func (Nop) SetPending(int)                       {}
func (Nop) ObserveDrain(time.Duration)           {}
