package api

import (
	"net/http"
	"time"

	"airspace-charge-auditor/internal/reconciler"
	"airspace-charge-auditor/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Audit outcomes recorded by auditor_audits_total
const (
	OutcomeSuccess       = "success"
	OutcomeClientError   = "client_error"
	OutcomeInvalidSource = "invalid_source"
	OutcomeServerError   = "server_error"
)

// Metrics holds the collectors of one server. Each server owns its registry,
// so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	audits   *prometheus.CounterVec
	records  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates and registers the audit collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		audits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_audits_total",
			Help: "Audit requests by outcome.",
		}, []string{"outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_charge_records_total",
			Help: "Charge records reconciled, by match status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_audit_duration_seconds",
			Help:    "Wall time of audit requests.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	m.registry.MustRegister(
		m.audits,
		m.records,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveAudit records the outcome of one audit request
func (m *Metrics) ObserveAudit(result *reconciler.AuditResult, err error, elapsed time.Duration) {
	m.duration.Observe(elapsed.Seconds())
	m.audits.WithLabelValues(outcome(err)).Inc()

	if err != nil || result == nil || result.Summary == nil {
		return
	}
	m.records.WithLabelValues("matched").Add(float64(result.Summary.MatchedRecords))
	m.records.WithLabelValues("unmatched").Add(float64(result.Summary.UnmatchedRecords))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and embedding
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}

	auditErr, ok := errors.AsAuditError(err)
	if !ok {
		return OutcomeServerError
	}

	switch status := auditErr.HTTPStatus(); {
	case status == http.StatusUnprocessableEntity:
		return OutcomeInvalidSource
	case status >= 500:
		return OutcomeServerError
	default:
		return OutcomeClientError
	}
}
