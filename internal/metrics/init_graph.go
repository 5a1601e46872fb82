package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initGraphMetrics() {
	r.GraphPagesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "ptgbot_graph_pages_total",
			Help: "Number of pages in the transition graph",
		},
	)

	r.GraphEdgesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "ptgbot_graph_edges_total",
			Help: "Number of edges in the transition graph",
		},
	)

	r.TransitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ptgbot_transitions_total",
			Help: "Transition records processed by the graph builder",
		},
		[]string{"kind"},
	)

	r.BuilderQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "ptgbot_builder_queue_depth",
			Help: "Transition records waiting for the graph builder",
		},
	)

	r.BuilderRecordDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ptgbot_builder_record_duration_seconds",
			Help:    "Time the builder spends on one transition record",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
		},
	)
}

func (r *Registry) initRunMetrics() {
	r.VerifyOutcomesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ptgbot_verify_outcomes_total",
			Help: "Edge verification outcomes",
		},
		[]string{"outcome"},
	)

	r.ExploreStepsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ptgbot_explore_steps_total",
			Help: "Driver steps by result",
		},
		[]string{"status"},
	)

	r.BugsReportedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "ptgbot_bugs_reported_total",
			Help: "Bugs reported by the reviewer",
		},
	)
}
