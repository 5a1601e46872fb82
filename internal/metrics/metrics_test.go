package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r.OracleCallsTotal)
	require.NotNil(t, r.EquivalenceDecisionsTotal)
	require.NotNil(t, r.VerifyOutcomesTotal)
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}

func TestRecordOracleCall(t *testing.T) {
	r := NewRegistry()
	r.RecordOracleCall("judge_novelty", true, 2*time.Second)
	r.RecordOracleCall("judge_novelty", false, time.Second)
	r.RecordOracleCall("judge_novelty", true, time.Second)

	counter, err := r.OracleCallsTotal.GetMetricWithLabelValues("judge_novelty", "success")
	require.NoError(t, err)
	var metric dto.Metric
	require.NoError(t, counter.Write(&metric))
	assert.Equal(t, 2.0, metric.GetCounter().GetValue())
}

func TestRecordEquivalenceAndGraph(t *testing.T) {
	r := NewRegistry()
	r.RecordEquivalence("tag", false)
	r.UpdateGraphMetrics(4, 6)

	var metric dto.Metric
	c, err := r.EquivalenceDecisionsTotal.GetMetricWithLabelValues("tag", "different")
	require.NoError(t, err)
	require.NoError(t, c.Write(&metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())

	metric.Reset()
	require.NoError(t, r.GraphPagesTotal.Write(&metric))
	assert.Equal(t, 4.0, metric.GetGauge().GetValue())
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.RecordOracleCall("x", true, time.Second)
	r.RecordEquivalence("label", true)
	r.RecordTransition("new_page", time.Millisecond)
	r.UpdateGraphMetrics(1, 1)
	r.SetQueueDepth(3)
	r.RecordOutcome("MATCH")
	r.RecordStep(true)
	r.RecordBug()
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordOutcome("MATCH")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), `ptgbot_verify_outcomes_total{outcome="MATCH"} 1`))
}
