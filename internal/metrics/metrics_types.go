package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for a run. A nil *Registry is valid and records
// nothing.
type Registry struct {
	// Oracle Metrics
	OracleCallsTotal   *prometheus.CounterVec
	OracleCallDuration *prometheus.HistogramVec
	OracleRetriesTotal *prometheus.CounterVec

	// Equivalence Metrics
	EquivalenceDecisionsTotal *prometheus.CounterVec

	// Graph Metrics
	GraphPagesTotal       prometheus.Gauge
	GraphEdgesTotal       prometheus.Gauge
	TransitionsTotal      *prometheus.CounterVec
	BuilderQueueDepth     prometheus.Gauge
	BuilderRecordDuration prometheus.Histogram

	// Verification Metrics
	VerifyOutcomesTotal *prometheus.CounterVec
	ExploreStepsTotal   *prometheus.CounterVec
	BugsReportedTotal   prometheus.Counter

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initOracleMetrics()
	r.initGraphMetrics()
	r.initRunMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
