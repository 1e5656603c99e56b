package vacation

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/vacation-engine/generic"
)

// Metrics names as constants for consistency.
const (
	MetricOperationsTotal       = "vacation_operations_total"
	MetricAccrualEmployeesTotal = "vacation_accrual_sweep_employees_total"
	MetricAccrualSweepDuration  = "vacation_accrual_sweep_duration_seconds"
)

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeIntegrity = "integrity_error"
	OutcomeFailure   = "failure"

	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
)

// Metrics contains Prometheus metrics for engine operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	accrualOutcomes *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
}

// NewMetrics creates the collectors. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricOperationsTotal,
				Help: "Vacation engine operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		accrualOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAccrualEmployeesTotal,
				Help: "Employees processed by the daily accrual sweep by outcome",
			},
			[]string{"outcome"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricAccrualSweepDuration,
				Help:    "Duration of one company accrual sweep in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
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
	return []prometheus.Collector{m.operations, m.accrualOutcomes, m.sweepDuration}
}

func (m *Metrics) observeOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcomeOf(err)).Inc()
}

func (m *Metrics) observeAccrual(outcome string) {
	if m == nil {
		return
	}
	m.accrualOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSweep(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, generic.ErrDataIntegrity):
		return OutcomeIntegrity
	case generic.IsClientError(err):
		return OutcomeRejected
	default:
		return OutcomeFailure
	}
}
