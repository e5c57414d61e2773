package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.RecordCounter("norm_lookups_total", 1, map[string]string{"source": "file", "table": "subtest", "status": "success"})
	pm.RecordCounter("norm_lookups_total", 2, map[string]string{"source": "file", "table": "subtest", "status": "success"})
	pm.RecordCounter("responses_recorded_total", 1, map[string]string{"subtest": "listening_comprehension", "response": "correct"})
	pm.RecordCounter("calculations_total", 1, map[string]string{"outcome": "out_of_range"})
	pm.RecordCounter("norm_circuit_rejections_total", 1, map[string]string{"source": "http"})
	pm.RecordCounter("undo_total", 1, nil)
	pm.RecordCounter("undo_total", 1, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(pm.normLookups.WithLabelValues("file", "subtest", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.responses.WithLabelValues("listening_comprehension", "correct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.calculations.WithLabelValues("out_of_range")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.circuitRejections.WithLabelValues("http")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.events.WithLabelValues("undo_total")))
}

func TestPrometheusMetrics_MissingLabelsFallBack(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.RecordCounter("calculations_total", 1, nil)
	pm.RecordCounter("calculations_total", 1, map[string]string{"outcome": ""})

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.calculations.WithLabelValues("unknown")))
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.RecordGauge("norm_circuit_state", 1, map[string]string{"source": "http"})
	pm.RecordGauge("norm_circuit_state", 2, map[string]string{"source": "http"})
	pm.RecordGauge("open_evaluations", 7, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.circuitState.WithLabelValues("http")))
	assert.Equal(t, 7.0, testutil.ToFloat64(pm.stateGauges.WithLabelValues("open_evaluations")))
}

func TestPrometheusMetrics_HistogramsAndLatency(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.RecordHistogram("norm_lookup_latency_seconds", 0.002, map[string]string{"source": "file", "table": "composite", "status": "success"})
	pm.RecordHistogram("norm_lookup_latency_seconds", 0.004, map[string]string{"source": "file", "table": "composite", "status": "success"})
	pm.RecordLatency("calculate", 15*time.Millisecond, map[string]string{"outcome": "success"})
	pm.RecordHistogram("queue_wait", 0.5, nil)

	assert.Equal(t, 1, testutil.CollectAndCount(pm.normLookupLatency))
	assert.Equal(t, 2, testutil.CollectAndCount(pm.operationLatency))
}

func TestPrometheusMetrics_Handler(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.RecordCounter("evaluations_created_total", 1, nil)
	pm.RecordCounter("norm_lookups_total", 1, map[string]string{"source": "file", "table": "subtest", "status": "out_of_range"})

	rec := httptest.NewRecorder()
	pm.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `owls_events_total{event="evaluations_created_total"} 1`)
	assert.Contains(t, body, `owls_norm_lookups_total{source="file",status="out_of_range",table="subtest"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestPrometheusMetrics_IndependentRegistries(t *testing.T) {
	a := NewPrometheusMetrics()
	b := NewPrometheusMetrics()

	a.RecordCounter("undo_total", 1, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.events.WithLabelValues("undo_total")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.events.WithLabelValues("undo_total")))
}
