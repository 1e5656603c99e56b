/*
engine.go - Company audit runs

PURPOSE:
  Run executes every check against one company, concurrently, and turns the
  results into a Report:

    FAILED   any error finding
    WARNING  no errors, at least one warning
    PASSED   nothing found

PARTIAL FAILURE:
  Checks are independent. A check that returns an error or panics does not
  stop the others; it contributes one CRITICAL "<CHECK>_CHECK_ERROR" finding
  instead of its results.

ALERTING:
  CRITICAL findings are sent to the Notifier after the report is saved. A
  notifier failure is logged and counted, and the run still succeeds.

SEE ALSO:
  - checks.go: the seven checks and the shared snapshot
  - notify/: Notifier implementations (slog, Kafka)
*/
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/warp/vacation-engine/generic"
)

const tracerName = "github.com/warp/vacation-engine/audit"

// maxParallelChecks bounds concurrent checks per run.
const maxParallelChecks = 4

// Engine runs audits.
type Engine struct {
	source    Source
	reports   ReportStore
	notifier  Notifier
	clock     generic.Clock
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	staleness Staleness
	checks    []Check
}

type Option func(e *Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithClock(clock generic.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithStaleness(st Staleness) Option {
	return func(e *Engine) {
		e.staleness = st
	}
}

// WithChecks replaces the default checks.
func WithChecks(checks ...Check) Option {
	return func(e *Engine) {
		e.checks = checks
	}
}

// NewEngine constructs an audit Engine.
func NewEngine(source Source, reports ReportStore, opts ...Option) *Engine {
	e := &Engine{source: source, reports: reports, staleness: DefaultStaleness}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = generic.SystemClock{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.checks == nil {
		e.checks = DefaultChecks(e.clock, e.staleness)
	}
	return e
}

// Run audits one company, persists the report and alerts on CRITICAL
// findings. The error is only non-nil when the report could not be saved;
// the report is returned either way.
func (e *Engine) Run(ctx context.Context, companyID string) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "audit.Run", trace.WithAttributes(attribute.String("company_id", companyID)))
	defer span.End()
	started := time.Now()

	snap := NewSnapshot(e.source, companyID)
	perCheck := make([][]Finding, len(e.checks))
	names := make([]string, len(e.checks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChecks)
	for i, c := range e.checks {
		names[i] = c.Name
		g.Go(func() error {
			perCheck[i] = e.runCheck(gctx, c, snap)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Timestamp: e.clock.Now().UTC(),
		Findings:  assemble(names, perCheck, snap.counts()),
	}
	report.Status = statusOf(report.Findings.Summary.TotalErrors, report.Findings.Summary.TotalWarnings)
	span.SetAttributes(attribute.String("status", string(report.Status)))
	e.metrics.observeRun(report, time.Since(started).Seconds())

	e.logger.InfoContext(ctx, "audit finished",
		"company_id", companyID, "status", string(report.Status),
		"errors", report.Findings.Summary.TotalErrors, "warnings", report.Findings.Summary.TotalWarnings)

	if err := e.reports.SaveReport(ctx, *report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.ErrorContext(ctx, "audit report not saved", "company_id", companyID, "error", err)
		e.alert(ctx, report)
		return report, fmt.Errorf("save audit report: %w", err)
	}
	e.alert(ctx, report)
	return report, nil
}

// LatestReport returns the most recent report of a company.
func (e *Engine) LatestReport(ctx context.Context, companyID string) (Report, error) {
	return e.reports.LatestReport(ctx, companyID)
}

// runCheck shields the run from a failing check.
func (e *Engine) runCheck(ctx context.Context, c Check, snap *Snapshot) (out []Finding) {
	defer func() {
		if r := recover(); r != nil {
			out = []Finding{checkError(c.Name, fmt.Errorf("panic: %v", r))}
		}
	}()
	findings, err := c.Run(ctx, snap)
	if err != nil {
		e.logger.ErrorContext(ctx, "audit check failed", "check", c.Name, "error", err)
		return []Finding{checkError(c.Name, err)}
	}
	for i := range findings {
		findings[i].Check = c.Name
	}
	sortFindings(findings)
	return findings
}

func checkError(name string, err error) Finding {
	return Finding{
		Check:    name,
		Type:     strings.ToUpper(name) + "_CHECK_ERROR",
		Kind:     KindError,
		Severity: SeverityCritical,
		Message:  err.Error(),
	}
}

func (e *Engine) alert(ctx context.Context, report *Report) {
	critical := report.Critical()
	if len(critical) == 0 || e.notifier == nil {
		return
	}
	err := e.notifier.Notify(ctx, Alert{
		ReportID:  report.ID,
		CompanyID: report.CompanyID,
		Status:    report.Status,
		Timestamp: report.Timestamp,
		Findings:  critical,
	})
	if err != nil {
		e.metrics.incNotifyFailure()
		e.logger.WarnContext(ctx, "critical audit alert not delivered",
			"company_id", report.CompanyID, "report_id", report.ID, "error", err)
	}
}
