package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordCycle("single", OutcomeSuccess, 3*time.Second)
	m.RecordCycle("single", OutcomeSuccess, time.Second)
	m.RecordProbe("enrich", OutcomeFailure, time.Second)
	m.RecordEnrichFailure("PROBE_FAILURE")
	m.SetNodes(12)
	m.SetState(1)
	m.RecordSummary(OutcomeSuccess)
	m.RecordSnapshot(OutcomeFailure)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("single", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probes.WithLabelValues("enrich", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enrichFailures.WithLabelValues("PROBE_FAILURE")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.nodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues(OutcomeFailure)))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetNodes(3)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "topomap_registry_nodes 3")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCycle("continuous", OutcomeFailure, time.Second)
		m.RecordProbe("sweep", OutcomeSuccess, time.Second)
		m.RecordEnrichFailure("TIMEOUT")
		m.SetNodes(1)
		m.SetState(2)
		m.RecordSummary(OutcomeFailure)
		m.RecordSnapshot(OutcomeSuccess)
	})
	assert.Nil(t, m.Registry())

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
