package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Run metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updns_runs_total",
			Help: "Total number of update runs by terminal outcome",
		},
		[]string{"outcome"},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "updns_phase_duration_seconds",
			Help:    "Duration of each workflow phase in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"phase"},
	)

	ComponentsUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updns_components_updated_total",
			Help: "Total number of components updated to a healthy state",
		},
	)

	HealthPollAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "updns_health_poll_attempts",
			Help:    "Health poll attempts spent per component",
			Buckets: prometheus.LinearBuckets(1, 1, 12),
		},
		[]string{"component"},
	)

	// Verifier metrics
	ResolutionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "updns_resolution_latency_seconds",
			Help:    "End-to-end resolution latency sampled during verification",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(ComponentsUpdated)
	prometheus.MustRegister(HealthPollAttempts)
	prometheus.MustRegister(ResolutionLatency)
}
