package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRunsTotal           = "vacation_audit_runs_total"
	MetricFindingsTotal       = "vacation_audit_findings_total"
	MetricRunDuration         = "vacation_audit_run_duration_seconds"
	MetricNotifyFailuresTotal = "vacation_audit_notify_failures_total"
)

// Metrics contains Prometheus metrics for audit runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs           *prometheus.CounterVec
	findings       *prometheus.CounterVec
	runDuration    prometheus.Histogram
	notifyFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRunsTotal,
				Help: "Audit runs by report status",
			},
			[]string{"status"},
		),
		findings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFindingsTotal,
				Help: "Audit findings by check and severity",
			},
			[]string{"check", "severity"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricRunDuration,
				Help:    "Duration of one company audit run in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		notifyFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricNotifyFailuresTotal,
				Help: "Critical alerts the notifier failed to deliver",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.runs, m.findings, m.runDuration, m.notifyFailures}
}

func (m *Metrics) observeRun(r *Report, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(r.Status)).Inc()
	m.runDuration.Observe(seconds)
	for _, f := range append(append([]Finding(nil), r.Findings.Errors...), r.Findings.Warnings...) {
		m.findings.WithLabelValues(f.Check, string(f.Severity)).Inc()
	}
}

func (m *Metrics) incNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
