// Package metrics exposes prometheus collectors for the delivery pipelines
// and the kernel fold.  Registration is optional; a nil *Metrics is a no-op
// everywhere so instrumented code never branches on configuration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the runtime collectors.
type Metrics struct {
	Claimed   *prometheus.CounterVec
	Delivered *prometheus.CounterVec
	Deduped   *prometheus.CounterVec
	Requeued  *prometheus.CounterVec
	Inflight  *prometheus.GaugeVec
	Folds     prometheus.Counter
}

// New creates the collectors and registers them with the registerer; pass
// prometheus.DefaultRegisterer for the usual global registry.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		Claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "continuum",
			Subsystem: "delivery",
			Name:      "claimed_total",
			Help:      "Intents claimed from a pipeline.",
		}, []string{"pipeline"}),
		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "continuum",
			Subsystem: "delivery",
			Name:      "delivered_total",
			Help:      "Intents delivered to a terminal outcome.",
		}, []string{"pipeline", "status"}),
		Deduped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "continuum",
			Subsystem: "delivery",
			Name:      "deduped_total",
			Help:      "Duplicate deliveries collapsed by the dedupe table.",
		}, []string{"pipeline"}),
		Requeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "continuum",
			Subsystem: "delivery",
			Name:      "requeued_total",
			Help:      "Claims returned to pending after expiry or release.",
		}, []string{"pipeline"}),
		Inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "continuum",
			Subsystem: "delivery",
			Name:      "inflight",
			Help:      "Intents currently claimed.",
		}, []string{"pipeline"}),
		Folds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "continuum",
			Subsystem: "kernel",
			Name:      "folds_total",
			Help:      "Journal records folded.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.Claimed, m.Delivered, m.Deduped, m.Requeued, m.Inflight, m.Folds)
	}
	return m
}

// ClaimInc records a claim.
func (m *Metrics) ClaimInc(pipeline string) {
	if m == nil {
		return
	}
	m.Claimed.WithLabelValues(pipeline).Inc()
	m.Inflight.WithLabelValues(pipeline).Inc()
}

// DeliveredInc records a terminal delivery.
func (m *Metrics) DeliveredInc(pipeline, status string) {
	if m == nil {
		return
	}
	m.Delivered.WithLabelValues(pipeline, status).Inc()
	m.Inflight.WithLabelValues(pipeline).Dec()
}

// DedupedInc records a collapsed duplicate.
func (m *Metrics) DedupedInc(pipeline string) {
	if m == nil {
		return
	}
	m.Deduped.WithLabelValues(pipeline).Inc()
}

// RequeuedInc records a claim returned to pending.
func (m *Metrics) RequeuedInc(pipeline string, count int) {
	if m == nil {
		return
	}
	m.Requeued.WithLabelValues(pipeline).Add(float64(count))
	m.Inflight.WithLabelValues(pipeline).Sub(float64(count))
}

// FoldInc records folded records.
func (m *Metrics) FoldInc(count int) {
	if m == nil {
		return
	}
	m.Folds.Add(float64(count))
}
