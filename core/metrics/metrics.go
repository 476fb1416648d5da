// Package metrics holds the Prometheus collectors of the SDK. Collectors are
// created per Metrics value and registered on a caller-supplied registerer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stablecoin"

// Metrics groups the SDK collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	rejections       *prometheus.CounterVec
	multisigEvents   *prometheus.CounterVec
	signerRequests   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "adapter",
				Name:      "dispatches_total",
				Help:      "Total number of ledger dispatches by backend, transaction kind and outcome.",
			},
			[]string{"backend", "kind", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "adapter",
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of ledger dispatches.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"backend"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "service",
				Name:      "rejections_total",
				Help:      "Operations rejected before dispatch, by operation and error code.",
			},
			[]string{"operation", "code"},
		),
		multisigEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "multisig",
				Name:      "events_total",
				Help:      "Multi-signature lifecycle events.",
			},
			[]string{"event"},
		),
		signerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "signer",
				Name:      "requests_total",
				Help:      "Remote signing requests by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		),
	}

	for _, c := range []prometheus.Collector{m.dispatches, m.dispatchDuration, m.rejections, m.multisigEvents, m.signerRequests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveDispatch records one ledger dispatch.
func (m *Metrics) ObserveDispatch(backend, kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(backend, kind, outcome).Inc()
	m.dispatchDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordRejection records an operation rejected by a local check.
func (m *Metrics) RecordRejection(operation, code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, code).Inc()
}

// RecordMultiSig records a multi-signature lifecycle event.
func (m *Metrics) RecordMultiSig(event string) {
	if m == nil {
		return
	}
	m.multisigEvents.WithLabelValues(event).Inc()
}

// RecordSignerRequest records a remote signing request.
func (m *Metrics) RecordSignerRequest(strategy, outcome string) {
	if m == nil {
		return
	}
	m.signerRequests.WithLabelValues(strategy, outcome).Inc()
}
