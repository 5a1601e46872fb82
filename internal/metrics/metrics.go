package metrics

import (
	"time"
)

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// RecordOracleCall records one oracle operation with its duration
func (r *Registry) RecordOracleCall(operation string, ok bool, duration time.Duration) {
	if r == nil {
		return
	}
	r.OracleCallsTotal.WithLabelValues(operation, status(ok)).Inc()
	r.OracleCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *Registry) RecordOracleRetry(operation string) {
	if r == nil {
		return
	}
	r.OracleRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordEquivalence records which layer settled a page comparison
func (r *Registry) RecordEquivalence(layer string, same bool) {
	if r == nil {
		return
	}
	result := "different"
	if same {
		result = "same"
	}
	r.EquivalenceDecisionsTotal.WithLabelValues(layer, result).Inc()
}

// RecordTransition records a builder record; kind is new_page, known_page or ineffective
func (r *Registry) RecordTransition(kind string, duration time.Duration) {
	if r == nil {
		return
	}
	r.TransitionsTotal.WithLabelValues(kind).Inc()
	r.BuilderRecordDuration.Observe(duration.Seconds())
}

// UpdateGraphMetrics updates graph size gauges
func (r *Registry) UpdateGraphMetrics(pages, edges int) {
	if r == nil {
		return
	}
	r.GraphPagesTotal.Set(float64(pages))
	r.GraphEdgesTotal.Set(float64(edges))
}

func (r *Registry) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.BuilderQueueDepth.Set(float64(n))
}

func (r *Registry) RecordOutcome(outcome string) {
	if r == nil {
		return
	}
	r.VerifyOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (r *Registry) RecordStep(ok bool) {
	if r == nil {
		return
	}
	r.ExploreStepsTotal.WithLabelValues(status(ok)).Inc()
}

func (r *Registry) RecordBug() {
	if r == nil {
		return
	}
	r.BugsReportedTotal.Inc()
}
