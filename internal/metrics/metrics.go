package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banking/txn-monitoring-service/internal/domain"
)

const namespace = "txn_monitoring"

// Status label values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the service collectors
type Metrics struct {
	scenarioRuns     *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	alerts           *prometheus.CounterVec
	autoClosed       *prometheus.CounterVec
	fetchBatches     *prometheus.CounterVec
	narratives       *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	gatherer         prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		scenarioRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scenario_runs_total",
				Help:      "Total number of scenario runs",
			},
			[]string{"scenario", "status"},
		),
		scenarioDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scenario_duration_seconds",
				Help:      "Scenario run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5m
			},
			[]string{"scenario"},
		),
		alerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total number of scored alerts",
			},
			[]string{"scenario", "priority"},
		),
		autoClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_auto_closed_total",
				Help:      "Alerts recommended for auto-closure",
			},
			[]string{"scenario"},
		),
		fetchBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_batches_total",
				Help:      "Bulk-fetch batches by outcome",
			},
			[]string{"status"},
		),
		narratives: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "narratives_total",
				Help:      "Narrative requests by outcome",
			},
			[]string{"status"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "path"},
		),
		gatherer: reg,
	}
}

func status(ok bool) string {
	if ok {
		return StatusSuccess
	}
	return StatusFailure
}

// ScenarioRun records one scenario execution
func (m *Metrics) ScenarioRun(scenarioID string, ok bool, d time.Duration) {
	m.scenarioRuns.WithLabelValues(scenarioID, status(ok)).Inc()
	m.scenarioDuration.WithLabelValues(scenarioID).Observe(d.Seconds())
}

// AlertsScored counts scored alerts by priority
func (m *Metrics) AlertsScored(scenarioID string, alerts []*domain.Alert) {
	for _, a := range alerts {
		priority := "unscored"
		if a.Score != nil {
			priority = string(a.Score.Priority)
		}
		m.alerts.WithLabelValues(scenarioID, priority).Inc()
		if a.IsAutoClosed() {
			m.autoClosed.WithLabelValues(scenarioID).Inc()
		}
	}
}

// Narrative records a narrative request outcome
func (m *Metrics) Narrative(ok bool) {
	m.narratives.WithLabelValues(status(ok)).Inc()
}

// FetchBatch records a bulk-fetch batch outcome
func (m *Metrics) FetchBatch(ok bool) {
	m.fetchBatches.WithLabelValues(status(ok)).Inc()
}

// HTTPRequest records one served request
func (m *Metrics) HTTPRequest(method, path string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
