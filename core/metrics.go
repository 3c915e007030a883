// core/metrics.go
package core

// Prometheus counters for every gateway pipeline stage: one owned
// *prometheus.Registry plus typed counter/histogram fields, rather than
// the default global registry, so tests and embedders can run several
// instances side by side.

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns a dedicated prometheus registry scoped to the gateway,
// resolver, and sandbox — every counter/histogram this process exposes.
type Metrics struct {
	Registry *prometheus.Registry

	admissions    *prometheus.CounterVec // label: outcome
	resolutions   *prometheus.CounterVec // label: source
	terminations  *prometheus.CounterVec // label: error_type ("" = success)
	requestDur    prometheus.Histogram
	gasUsed       prometheus.Histogram
}

// NewMetrics constructs and registers every metric CodeForge exposes.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeforge",
			Subsystem: "gateway",
			Name:      "admissions_total",
			Help:      "Admission pipeline outcomes by stage result.",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeforge",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Successful artifact resolutions by source layer.",
		}, []string{"source"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeforge",
			Subsystem: "executor",
			Name:      "terminations_total",
			Help:      "Execution terminations by error_type (empty = success).",
		}, []string{"error_type"}),
		requestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codeforge",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "End-to-end submit() latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		gasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codeforge",
			Subsystem: "executor",
			Name:      "gas_used",
			Help:      "Gas consumed per execution.",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 10),
		}),
	}
	reg.MustRegister(m.admissions, m.resolutions, m.terminations, m.requestDur, m.gasUsed)
	return m
}

func (m *Metrics) ObserveAdmission(outcome string) {
	m.admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveResolution(source ResolutionSource) {
	m.resolutions.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) ObserveTermination(errType ErrorType) {
	m.terminations.WithLabelValues(string(errType)).Inc()
}

func (m *Metrics) ObserveRequestDuration(d time.Duration) {
	m.requestDur.Observe(d.Seconds())
}

func (m *Metrics) ObserveGasUsed(gas uint64) {
	m.gasUsed.Observe(float64(gas))
}
