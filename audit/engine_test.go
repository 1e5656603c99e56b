package audit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/warp/vacation-engine/audit"
	"github.com/warp/vacation-engine/audit/mocks"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// Audit Engine Test Suite
// =============================================================================
// Data is written through the vacation engine so a clean company really is
// clean; corruption is injected with the memory store's raw writers.

const company = "co-1"

var hr = vacation.Actor{UserID: "hr-1", CompanyID: company, Role: vacation.RoleHR}

type AuditEngineSuite struct {
	suite.Suite
	ctx          context.Context
	ctrl         *gomock.Controller
	mockNotifier *mocks.MockNotifier
	store        *memory.Memory
	clock        *generic.FixedClock
	engine       *vacation.Engine
	logger       *slog.Logger
}

func TestAuditEngineSuite(t *testing.T) {
	suite.Run(t, new(AuditEngineSuite))
}

func (s *AuditEngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.mockNotifier = mocks.NewMockNotifier(s.ctrl)
	s.store = memory.New()
	s.clock = generic.NewFixedClock(generic.MustDate("2024-01-01"))
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.engine = vacation.NewEngine(s.store, vacation.WithClock(s.clock), vacation.WithLogger(s.logger))
}

func (s *AuditEngineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AuditEngineSuite) auditor(opts ...audit.Option) *audit.Engine {
	base := []audit.Option{
		audit.WithClock(s.clock),
		audit.WithNotifier(s.mockNotifier),
		audit.WithLogger(s.logger),
	}
	return audit.NewEngine(s.store, s.store, append(base, opts...)...)
}

// seed opens emp-1 and leaves one hr_approved and one enjoyed request.
func (s *AuditEngineSuite) seed() {
	_, err := s.engine.OpenBalance(s.ctx, hr, vacation.OpenBalanceInput{
		EmployeeID: "emp-1", LeaderID: hr.UserID, HireDate: generic.MustDate("2023-01-01"),
	})
	s.Require().NoError(err)

	approve := func(start, end string) *vacation.Request {
		r, err := s.engine.CreateRequest(s.ctx, hr, company, vacation.CreateRequestInput{
			EmployeeID: "emp-1", RequestedDays: decimal.NewFromInt(2),
			StartDate: generic.MustDate(start), EndDate: generic.MustDate(end),
		})
		s.Require().NoError(err)
		_, _, err = s.engine.LeaderDecision(s.ctx, hr, company, r.ID, true, "")
		s.Require().NoError(err)
		_, _, err = s.engine.HRDecision(s.ctx, hr, company, r.ID, true, "")
		s.Require().NoError(err)
		return r
	}

	approve("2024-03-04", "2024-03-05")
	enjoyed := approve("2024-01-01", "2024-01-02")
	_, _, err = s.engine.ScheduleRequest(s.ctx, hr, company, enjoyed.ID, enjoyed.StartDate, enjoyed.EndDate)
	s.Require().NoError(err)
	_, _, err = s.engine.MarkEnjoyed(s.ctx, hr, company, enjoyed.ID)
	s.Require().NoError(err)
}

func (s *AuditEngineSuite) rawBalance(employeeID, accrued, enjoyed, pending, available string) {
	s.store.PutBalanceRaw(vacation.BalanceState{
		BalanceProfile: vacation.BalanceProfile{
			CompanyID:       company,
			EmployeeID:      employeeID,
			HireDate:        generic.MustDate("2023-01-01"),
			CalculationBase: vacation.Base365,
			WorkTimeFactor:  decimal.NewFromInt(1),
			LastAccrualDate: generic.Today(s.clock),
			Version:         1,
		},
		Counters: vacation.Counters{
			AccruedDays:           decimal.RequireFromString(accrued),
			EnjoyedDays:           decimal.RequireFromString(enjoyed),
			HistoricalEnjoyedDays: decimal.Zero,
			ApprovedPendingDays:   decimal.RequireFromString(pending),
			AvailableDays:         decimal.RequireFromString(available),
		},
	})
}

func findingTypes(fs []audit.Finding) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Type
	}
	return out
}

// =============================================================================
// Clean data
// =============================================================================

func (s *AuditEngineSuite) TestCleanCompanyPasses() {
	s.seed()

	report, err := s.auditor().Run(s.ctx, company)

	s.Require().NoError(err)
	s.Equal(audit.StatusPassed, report.Status)
	s.Empty(report.Findings.Errors)
	s.Empty(report.Findings.Warnings)
	s.Len(report.Findings.Checks, 7)
	s.Equal(7, report.Findings.Summary.PassedChecks)
	s.Equal(1, report.Findings.Summary.BalancesChecked)
	s.Equal(2, report.Findings.Summary.RequestsChecked)
	s.Positive(report.Findings.Summary.AuditEntriesChecked)

	latest, err := s.auditor().LatestReport(s.ctx, company)
	s.Require().NoError(err)
	s.Equal(report.ID, latest.ID)
}

func (s *AuditEngineSuite) TestRunsAreIdempotent() {
	s.seed()
	s.rawBalance("emp-2", "10", "0", "0", "9")
	s.mockNotifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Times(0)

	first, err := s.auditor().Run(s.ctx, company)
	s.Require().NoError(err)
	second, err := s.auditor().Run(s.ctx, company)
	s.Require().NoError(err)

	s.NotEqual(first.ID, second.ID)
	s.Equal(first.Status, second.Status)
	s.Equal(first.Findings, second.Findings)

	balances, err := s.store.ListBalances(s.ctx, company)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("9").Equal(balances[1].AvailableDays), "audit must not repair data")
}

// =============================================================================
// Findings
// =============================================================================

func (s *AuditEngineSuite) TestNegativeBalanceAlerts() {
	// GIVEN: A stored balance with more enjoyed than accrued days
	// WHEN: The audit runs
	// THEN: A CRITICAL NEGATIVE_BALANCE finding is reported and sent to the notifier

	s.rawBalance("emp-9", "15", "20", "0", "-5")

	var alert audit.Alert
	s.mockNotifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a audit.Alert) error {
			alert = a
			return nil
		}).
		Times(1)

	report, err := s.auditor().Run(s.ctx, company)

	s.Require().NoError(err)
	s.Equal(audit.StatusFailed, report.Status)
	s.Equal([]string{audit.TypeNegativeBalance}, findingTypes(report.Findings.Errors))
	s.Equal(1, report.Findings.Summary.CriticalFindings)

	s.Equal(report.ID, alert.ReportID)
	s.Equal(company, alert.CompanyID)
	s.Require().Len(alert.Findings, 1)
	s.Equal("emp-9", alert.Findings[0].EmployeeID)
	s.Equal(audit.SeverityCritical, alert.Findings[0].Severity)
}

func (s *AuditEngineSuite) TestNotifierFailureDoesNotFailRun() {
	s.rawBalance("emp-9", "15", "20", "0", "-5")
	s.mockNotifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	reg := prometheus.NewRegistry()
	m := audit.NewMetrics()
	s.Require().NoError(m.Register(reg))

	report, err := s.auditor(audit.WithMetrics(m)).Run(s.ctx, company)
	s.Require().NoError(err)
	s.Equal(audit.StatusFailed, report.Status)

	latest, err := s.store.LatestReport(s.ctx, company)
	s.Require().NoError(err)
	s.Equal(report.ID, latest.ID)

	families, err := reg.Gather()
	s.Require().NoError(err)
	var failures float64
	for _, f := range families {
		if f.GetName() == audit.MetricNotifyFailuresTotal {
			failures = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	s.Equal(float64(1), failures)
}

func (s *AuditEngineSuite) TestBalanceAndRequestFindings() {
	s.rawBalance("emp-1", "15", "0", "0", "12") // drift
	s.rawBalance("emp-2", "15", "0", "0", "15") // pending should be 5
	s.store.PutRequestRaw(vacation.Request{
		ID: "r-approved", CompanyID: company, EmployeeID: "emp-2",
		RequestedDays: decimal.NewFromInt(5), Status: vacation.StatusHRApproved,
	})
	s.store.PutRequestRaw(vacation.Request{
		ID: "r-bogus", CompanyID: company, EmployeeID: "emp-1",
		RequestedDays: decimal.NewFromInt(1), Status: vacation.Status("paused"),
	})
	s.store.PutRequestRaw(vacation.Request{
		ID: "r-orphan", CompanyID: company, EmployeeID: "emp-ghost",
		RequestedDays: decimal.NewFromInt(1), Status: vacation.StatusRequested,
	})
	s.store.PutRequestRaw(vacation.Request{
		ID: "r-enjoyed", CompanyID: company, EmployeeID: "emp-1",
		RequestedDays: decimal.NewFromInt(1), Status: vacation.StatusEnjoyed,
	})

	report, err := s.auditor().Run(s.ctx, company)

	s.Require().NoError(err)
	s.Equal(audit.StatusFailed, report.Status)
	s.ElementsMatch([]string{
		audit.TypeBalanceMismatch,
		audit.TypeInvalidRequestStatus,
		audit.TypeOrphanedRequest,
		audit.TypeApprovedPendingMismatch,
		audit.TypeUnaccountedEnjoyment,
	}, findingTypes(report.Findings.Errors))
	s.Zero(report.Findings.Summary.CriticalFindings)
}

func (s *AuditEngineSuite) TestPersonalDataInTrail() {
	s.Require().NoError(s.store.AppendAudit(s.ctx, vacation.AuditLogEntry{
		ID: "entry-1", CompanyID: company, EmployeeID: "emp-1", Action: vacation.ActionAccrue,
		NewState: map[string]any{"email": "someone@example.com"},
	}))
	s.mockNotifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	report, err := s.auditor().Run(s.ctx, company)

	s.Require().NoError(err)
	s.Require().Len(report.Findings.Errors, 1)
	s.Equal(audit.TypePIIInAuditLog, report.Findings.Errors[0].Type)
	s.Equal("entry-1", report.Findings.Errors[0].EntryID)
}

func (s *AuditEngineSuite) TestStaleAccrualWarns() {
	s.rawBalance("emp-1", "15", "0", "0", "15")
	s.clock.Advance(3)

	report, err := s.auditor().Run(s.ctx, company)
	s.Require().NoError(err)
	s.Equal(audit.StatusWarning, report.Status)
	s.Require().Len(report.Findings.Warnings, 1)
	s.Equal(audit.TypeStaleAccrual, report.Findings.Warnings[0].Type)
	s.Equal(audit.SeverityMedium, report.Findings.Warnings[0].Severity)

	s.clock.Advance(7)
	report, err = s.auditor().Run(s.ctx, company)
	s.Require().NoError(err)
	s.Equal(audit.SeverityHigh, report.Findings.Warnings[0].Severity)

	s.clock.Advance(-10)
	report, err = s.auditor(audit.WithStaleness(audit.Staleness{WarnAfterDays: 0, CriticalAfterDays: 0})).Run(s.ctx, company)
	s.Require().NoError(err)
	s.Equal(audit.StatusPassed, report.Status, "same-day accrual is never stale")
}

// =============================================================================
// Partial failure
// =============================================================================

func (s *AuditEngineSuite) TestPanickingCheckBecomesFinding() {
	s.rawBalance("emp-9", "15", "20", "0", "-5")
	checks := append(audit.DefaultChecks(s.clock, audit.DefaultStaleness), audit.Check{
		Name: "exploding",
		Run: func(context.Context, *audit.Snapshot) ([]audit.Finding, error) {
			panic("nil map")
		},
	})
	s.mockNotifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a audit.Alert) error {
			s.ElementsMatch([]string{audit.TypeNegativeBalance, "EXPLODING_CHECK_ERROR"}, findingTypes(a.Findings))
			return nil
		})

	report, err := s.auditor(audit.WithChecks(checks...)).Run(s.ctx, company)

	s.Require().NoError(err)
	s.Len(report.Findings.Checks, 8)
	s.ElementsMatch([]string{audit.TypeNegativeBalance, "EXPLODING_CHECK_ERROR"}, findingTypes(report.Findings.Errors))
	s.Equal(2, report.Findings.Summary.CriticalFindings)
}

type failingRequests struct {
	*memory.Memory
}

func (failingRequests) ListRequests(context.Context, string) ([]vacation.Request, error) {
	return nil, errors.New("requests table unavailable")
}

func (s *AuditEngineSuite) TestSourceFailureOnlyAffectsDependentChecks() {
	s.seed()
	s.mockNotifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	auditor := audit.NewEngine(failingRequests{s.store}, s.store,
		audit.WithClock(s.clock), audit.WithNotifier(s.mockNotifier), audit.WithLogger(s.logger))
	report, err := auditor.Run(s.ctx, company)

	s.Require().NoError(err)
	s.ElementsMatch([]string{
		"REQUEST_STATUS_CHECK_ERROR",
		"APPROVED_PENDING_CHECK_ERROR",
		"UNACCOUNTED_ENJOYMENT_CHECK_ERROR",
	}, findingTypes(report.Findings.Errors))
	s.Equal(4, report.Findings.Summary.PassedChecks)
	s.Equal(1, report.Findings.Summary.BalancesChecked)
	s.Zero(report.Findings.Summary.RequestsChecked)
}
