package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

func TestScenarioRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ScenarioRun("TS_SCN_01", true, 2*time.Second)
	m.ScenarioRun("TS_SCN_01", false, time.Second)
	m.ScenarioRun("TS_SCN_01", true, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scenarioRuns.WithLabelValues("TS_SCN_01", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scenarioRuns.WithLabelValues("TS_SCN_01", StatusFailure)))
}

func TestAlertsScored(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.AlertsScored("TS_SCN_12", []*domain.Alert{
		{Score: &domain.AlertScore{Priority: domain.PriorityLow}},
		{Score: &domain.AlertScore{Priority: domain.PriorityLow}},
		{Score: &domain.AlertScore{Priority: domain.PriorityAutoClosure, AutoClose: true}},
		{},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alerts.WithLabelValues("TS_SCN_12", "Low")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alerts.WithLabelValues("TS_SCN_12", "unscored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.autoClosed.WithLabelValues("TS_SCN_12")))
}

func TestCounters(t *testing.T) {
	m := New(nil)

	m.FetchBatch(true)
	m.FetchBatch(false)
	m.Narrative(false)
	m.HTTPRequest(http.MethodPost, "/api/v1/jobs/trigger", http.StatusOK, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchBatches.WithLabelValues(StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.narratives.WithLabelValues(StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodPost, "/api/v1/jobs/trigger", "200")))
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.FetchBatch(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `txn_monitoring_fetch_batches_total{status="success"} 1`))
}
