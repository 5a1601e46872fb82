package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initOracleMetrics() {
	r.OracleCallsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ptgbot_oracle_calls_total",
			Help: "Total number of decision oracle calls",
		},
		[]string{"operation", "status"},
	)

	r.OracleCallDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ptgbot_oracle_call_duration_seconds",
			Help:    "Decision oracle call duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	r.OracleRetriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ptgbot_oracle_retries_total",
			Help: "Total number of oracle replies rejected as malformed",
		},
		[]string{"operation"},
	)

	r.EquivalenceDecisionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ptgbot_equivalence_decisions_total",
			Help: "Page equivalence decisions by deciding layer",
		},
		[]string{"layer", "result"},
	)
}
