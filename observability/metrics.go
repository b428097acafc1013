package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the verification metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Verifications  *prometheus.CounterVec
	SourceFailures *prometheus.CounterVec
	SourceBytes    *prometheus.CounterVec
	SourceDuration *prometheus.HistogramVec
	RunDuration    prometheus.Histogram
	RPCs           *prometheus.CounterVec
	RPCDuration    *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates the metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfa_verifications_total",
				Help: "Completed verification runs by verdict",
			},
			[]string{"verdict"},
		),
		SourceFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfa_source_failures_total",
				Help: "Source resolution failures by error kind",
			},
			[]string{"kind"},
		),
		SourceBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfa_source_bytes_total",
				Help: "Bytes folded into digests by source type",
			},
			[]string{"source"},
		),
		SourceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nfa_source_duration_seconds",
				Help:    "Source resolution duration by source type",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"source"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nfa_run_duration_seconds",
				Help:    "End to end verification run duration",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
			},
		),
		RPCs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfa_cas_rpcs_total",
				Help: "CAS RPCs served by method and status code",
			},
			[]string{"method", "code"},
		),
		RPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nfa_cas_rpc_duration_seconds",
				Help:    "CAS RPC latency by method",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"method"},
		),
		registry: reg,
	}
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SourceResolved(sourceType string, bytes int64, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceBytes.WithLabelValues(sourceType).Add(float64(bytes))
	m.SourceDuration.WithLabelValues(sourceType).Observe(d.Seconds())
}

func (m *Metrics) SourceFailed(kind string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) RunCompleted(verdict string, d time.Duration) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(verdict).Inc()
	m.RunDuration.Observe(d.Seconds())
}
