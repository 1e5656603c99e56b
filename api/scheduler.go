/*
scheduler.go - Automated accrual and audit scheduler

PURPOSE:
  Periodically runs the two company-wide jobs for every company that has
  balances: the daily accrual sweep and the integrity audit.

DESIGN:
  - One background goroutine per job, each with its own interval
  - Both jobs run once immediately on Start
  - A failing company is logged and the loop moves on to the next one
  - Audit findings are delivered by the audit engine's notifier

CONFIGURATION:
  - AccrualInterval: How often to sweep accrual (default: 24 hours)
  - AuditInterval:   How often to audit (default: 24 hours)
  - Enabled:         Whether scheduler is active (default: true)

USAGE:
  scheduler := NewScheduler(engine, auditor, store, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunAccrual and RunAudit endpoints (manual trigger)
  - vacation/sweep.go: RunDailyAccrual
  - audit/engine.go: Run
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/vacation-engine/audit"
	"github.com/warp/vacation-engine/vacation"
)

// CompanyLister enumerates the companies that have balances.
type CompanyLister interface {
	ListCompanies(ctx context.Context) ([]string, error)
}

// Scheduler runs the daily accrual sweep and the integrity audit.
type Scheduler struct {
	Engine          *vacation.Engine
	Auditor         *audit.Engine
	Companies       CompanyLister
	AccrualInterval time.Duration
	AuditInterval   time.Duration
	Enabled         bool
	Logger          *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a new scheduler with daily intervals.
func NewScheduler(engine *vacation.Engine, auditor *audit.Engine, companies CompanyLister, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Engine:          engine,
		Auditor:         auditor,
		Companies:       companies,
		AccrualInterval: 24 * time.Hour,
		AuditInterval:   24 * time.Hour,
		Enabled:         true,
		Logger:          logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("scheduler disabled, not starting")
		return
	}
	if s.cancel != nil {
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(2)
	go s.loop(s.AccrualInterval, s.RunAccrual)
	go s.loop(s.AuditInterval, s.RunAudit)

	s.Logger.Info("scheduler started",
		"accrual_interval", s.AccrualInterval.String(), "audit_interval", s.AuditInterval.String())
}

// Stop halts the scheduler and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(interval time.Duration, job func(context.Context)) {
	defer s.wg.Done()

	// Run immediately on start
	job(s.ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			job(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// RunNow runs both jobs once, synchronously.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.RunAccrual(ctx)
	s.RunAudit(ctx)
}

// RunAccrual sweeps accrual for every company.
func (s *Scheduler) RunAccrual(ctx context.Context) {
	s.eachCompany(ctx, "accrual", func(companyID string) error {
		res, err := s.Engine.RunDailyAccrual(ctx, companyID)
		if err != nil {
			return err
		}
		s.Logger.InfoContext(ctx, "accrual sweep completed",
			"company_id", companyID, "processed", res.Processed, "updated", res.Updated, "failed", res.Failed)
		return nil
	})
}

// RunAudit audits every company.
func (s *Scheduler) RunAudit(ctx context.Context) {
	s.eachCompany(ctx, "audit", func(companyID string) error {
		report, err := s.Auditor.Run(ctx, companyID)
		if err != nil {
			return err
		}
		s.Logger.InfoContext(ctx, "audit completed",
			"company_id", companyID, "status", string(report.Status),
			"errors", report.Findings.Summary.TotalErrors, "warnings", report.Findings.Summary.TotalWarnings)
		return nil
	})
}

func (s *Scheduler) eachCompany(ctx context.Context, job string, fn func(companyID string) error) {
	companies, err := s.Companies.ListCompanies(ctx)
	if err != nil {
		s.Logger.ErrorContext(ctx, "list companies failed", "job", job, "error", err)
		return
	}
	for _, companyID := range companies {
		if ctx.Err() != nil {
			return
		}
		if err := fn(companyID); err != nil {
			s.Logger.ErrorContext(ctx, "scheduled job failed", "job", job, "company_id", companyID, "error", err)
		}
	}
}
