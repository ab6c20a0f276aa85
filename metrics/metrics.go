// Package metrics provides Prometheus metrics of the settlement processing.
package metrics

import (
	"time"

	"github.com/nspcc-dev/ntt-ledger/settlement"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ntt"

// Settlement collects metrics of settlements. Nil Settlement is valid and
// collects nothing.
type Settlement struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	amounts  *prometheus.CounterVec
	inflight *prometheus.GaugeVec
	await    prometheus.Histogram
}

// NewSettlement creates settlement metrics and registers them in reg if it's
// not nil.
func NewSettlement(reg prometheus.Registerer) *Settlement {
	m := &Settlement{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "started_total",
			Help:      "Number of settlements started",
		}, []string{"kind"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "finished_total",
			Help:      "Number of settlements finished",
		}, []string{"kind", "state"}),
		amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "amount_total",
			Help:      "Value processed by settlements",
		}, []string{"kind", "disposition"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "inflight",
			Help:      "Number of settlements waiting for the remote result",
		}, []string{"kind"}),
		await: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "await_seconds",
			Help:      "Time spent waiting for the remote result",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.started, m.finished, m.amounts, m.inflight, m.await)
	}

	return m
}

// Started counts a dispatched settlement.
func (m *Settlement) Started(k settlement.Kind) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(k.String()).Inc()
	m.inflight.WithLabelValues(k.String()).Inc()
}

// Resolved counts a resolved settlement with its amounts.
func (m *Settlement) Resolved(r settlement.Receipt) {
	if m == nil {
		return
	}
	kind := r.Kind.String()
	m.finished.WithLabelValues(kind, settlement.Resolved.String()).Inc()
	m.inflight.WithLabelValues(kind).Dec()
	m.amounts.WithLabelValues(kind, "requested").Add(float64(r.Requested))
	m.amounts.WithLabelValues(kind, "used").Add(float64(r.Used))
	m.amounts.WithLabelValues(kind, "refunded").Add(float64(r.Refunded))
	m.amounts.WithLabelValues(kind, "burned").Add(float64(r.Burned))
}

// Aborted counts a settlement aborted by protocol violation.
func (m *Settlement) Aborted(k settlement.Kind) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(k.String(), settlement.Aborted.String()).Inc()
	m.inflight.WithLabelValues(k.String()).Dec()
}

// Awaited observes time spent waiting for the remote result.
func (m *Settlement) Awaited(d time.Duration) {
	if m == nil {
		return
	}
	m.await.Observe(d.Seconds())
}
