// Package notify delivers CRITICAL audit alerts.
//
// Log writes alerts to slog and never fails. Kafka publishes one JSON record
// per alert, keyed by company, and returns the delivery error so the audit
// engine can count it. Multi fans out to several notifiers.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/warp/vacation-engine/audit"
)

// Log writes alerts to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log notifier. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Notify logs one line per critical finding.
func (l *Log) Notify(ctx context.Context, alert audit.Alert) error {
	for _, f := range alert.Findings {
		l.logger.ErrorContext(ctx, "CRITICAL: audit finding",
			"company_id", alert.CompanyID,
			"report_id", alert.ReportID,
			"check", f.Check,
			"type", f.Type,
			"employee_id", f.EmployeeID,
			"message", f.Message,
		)
	}
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []audit.Notifier

func (m Multi) Notify(ctx context.Context, alert audit.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ audit.Notifier = (*Log)(nil)
	_ audit.Notifier = Multi(nil)
)
