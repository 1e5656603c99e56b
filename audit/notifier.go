package audit

//go:generate mockgen -source=notifier.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"
)

// Alert carries the CRITICAL findings of one run to a notification sink.
type Alert struct {
	ReportID  string    `json:"report_id"`
	CompanyID string    `json:"company_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Findings  []Finding `json:"findings"`
}

// Notifier delivers alerts. Delivery failures are logged by the engine and
// never fail an audit run.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// ReportStore persists audit reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report Report) error
	LatestReport(ctx context.Context, companyID string) (Report, error)
}
