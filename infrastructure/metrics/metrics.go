// Package metrics provides optional Prometheus metrics for the SDK's server
// calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the SDK collectors. A nil *Metrics disables collection; all
// methods are nil-safe so the transport never branches on configuration.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	KeyRotations    prometheus.Counter
	CacheFallbacks  prometheus.Counter
}

// New creates the collectors and registers them with reg. Passing
// prometheus.DefaultRegisterer is the common case; tests pass their own
// registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ksm",
				Name:      "requests_total",
				Help:      "Server calls by endpoint path and HTTP status",
			},
			[]string{"path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ksm",
				Name:      "request_duration_seconds",
				Help:      "Server call latency by endpoint path",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		KeyRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ksm",
			Name:      "server_key_rotations_total",
			Help:      "Times the server requested a different public key",
		}),
		CacheFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ksm",
			Name:      "cache_fallbacks_total",
			Help:      "Reads answered from the offline cache after a network failure",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.KeyRotations, m.CacheFallbacks)
	}
	return m
}

// ObserveRequest records one server call.
func (m *Metrics) ObserveRequest(path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(path, status).Inc()
	m.RequestDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ObserveKeyRotation records a server-requested key rotation.
func (m *Metrics) ObserveKeyRotation() {
	if m == nil {
		return
	}
	m.KeyRotations.Inc()
}

// ObserveCacheFallback records an offline cache replay.
func (m *Metrics) ObserveCacheFallback() {
	if m == nil {
		return
	}
	m.CacheFallbacks.Inc()
}
