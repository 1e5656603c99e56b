package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// Check names.
const (
	CheckBalanceIntegrity     = "balance_integrity"
	CheckNegativeBalance      = "negative_balance"
	CheckRequestStatus        = "request_status"
	CheckApprovedPending      = "approved_pending"
	CheckUnaccountedEnjoyment = "unaccounted_enjoyment"
	CheckAuditLogPII          = "audit_log_pii"
	CheckAccrualStaleness     = "accrual_staleness"
)

// Finding types.
const (
	TypeBalanceMismatch         = "BALANCE_MISMATCH"
	TypeNegativeBalance         = "NEGATIVE_BALANCE"
	TypeInvalidRequestStatus    = "INVALID_REQUEST_STATUS"
	TypeApprovedPendingMismatch = "APPROVED_PENDING_MISMATCH"
	TypeOrphanedRequest         = "ORPHANED_REQUEST"
	TypeUnaccountedEnjoyment    = "UNACCOUNTED_ENJOYMENT"
	TypePIIInAuditLog           = "PII_IN_AUDIT_LOG"
	TypeStaleAccrual            = "STALE_ACCRUAL"
)

// Source is the read side the checks need.
type Source interface {
	ListBalances(ctx context.Context, companyID string) ([]vacation.BalanceState, error)
	ListRequests(ctx context.Context, companyID string) ([]vacation.Request, error)
	ListAudit(ctx context.Context, companyID string) ([]vacation.AuditLogEntry, error)
}

// Snapshot loads each dataset at most once per run and shares it between
// checks. A load failure only affects the checks that need that dataset.
type Snapshot struct {
	source    Source
	companyID string

	balancesOnce sync.Once
	balances     []vacation.BalanceState
	balancesErr  error

	requestsOnce sync.Once
	requests     []vacation.Request
	requestsErr  error

	entriesOnce sync.Once
	entries     []vacation.AuditLogEntry
	entriesErr  error
}

func NewSnapshot(source Source, companyID string) *Snapshot {
	return &Snapshot{source: source, companyID: companyID}
}

func (s *Snapshot) Balances(ctx context.Context) ([]vacation.BalanceState, error) {
	s.balancesOnce.Do(func() {
		s.balances, s.balancesErr = s.source.ListBalances(ctx, s.companyID)
	})
	return s.balances, s.balancesErr
}

func (s *Snapshot) Requests(ctx context.Context) ([]vacation.Request, error) {
	s.requestsOnce.Do(func() {
		s.requests, s.requestsErr = s.source.ListRequests(ctx, s.companyID)
	})
	return s.requests, s.requestsErr
}

func (s *Snapshot) Entries(ctx context.Context) ([]vacation.AuditLogEntry, error) {
	s.entriesOnce.Do(func() {
		s.entries, s.entriesErr = s.source.ListAudit(ctx, s.companyID)
	})
	return s.entries, s.entriesErr
}

// counts reports the sizes of whatever loaded successfully.
func (s *Snapshot) counts() Summary {
	return Summary{
		BalancesChecked:     len(s.balances),
		RequestsChecked:     len(s.requests),
		AuditEntriesChecked: len(s.entries),
	}
}

// Check is one independent audit rule.
type Check struct {
	Name string
	Run  func(ctx context.Context, snap *Snapshot) ([]Finding, error)
}

// Staleness thresholds, in days since lastAccrualDate.
type Staleness struct {
	WarnAfterDays     int
	CriticalAfterDays int
}

// DefaultStaleness warns after 2 days and escalates after 7.
var DefaultStaleness = Staleness{WarnAfterDays: 2, CriticalAfterDays: 7}

// DefaultChecks returns the seven standard checks.
func DefaultChecks(clock generic.Clock, st Staleness) []Check {
	return []Check{
		{Name: CheckBalanceIntegrity, Run: checkBalanceIntegrity},
		{Name: CheckNegativeBalance, Run: checkNegativeBalance},
		{Name: CheckRequestStatus, Run: checkRequestStatus},
		{Name: CheckApprovedPending, Run: checkApprovedPending},
		{Name: CheckUnaccountedEnjoyment, Run: checkUnaccountedEnjoyment},
		{Name: CheckAuditLogPII, Run: checkAuditLogPII},
		{Name: CheckAccrualStaleness, Run: stalenessCheck(clock, st)},
	}
}

// =============================================================================
// BALANCE CHECKS
// =============================================================================

func checkBalanceIntegrity(ctx context.Context, snap *Snapshot) ([]Finding, error) {
	balances, err := snap.Balances(ctx)
	if err != nil {
		return nil, err
	}
	var out []Finding
	for _, b := range balances {
		derived := b.DerivedAvailable()
		if generic.WithinTolerance(derived, b.AvailableDays) {
			continue
		}
		out = append(out, Finding{
			Check:      CheckBalanceIntegrity,
			Type:       TypeBalanceMismatch,
			Kind:       KindError,
			Severity:   SeverityHigh,
			EmployeeID: b.EmployeeID,
			Message: fmt.Sprintf("available %s differs from accrued - enjoyed - approved pending = %s",
				b.AvailableDays, derived),
			Details: map[string]string{
				"stored_available":  b.AvailableDays.String(),
				"derived_available": derived.String(),
			},
		})
	}
	return out, nil
}

func checkNegativeBalance(ctx context.Context, snap *Snapshot) ([]Finding, error) {
	balances, err := snap.Balances(ctx)
	if err != nil {
		return nil, err
	}
	var out []Finding
	for _, b := range balances {
		neg := b.Counters.Negative()
		if len(neg) == 0 {
			continue
		}
		out = append(out, Finding{
			Check:      CheckNegativeBalance,
			Type:       TypeNegativeBalance,
			Kind:       KindError,
			Severity:   SeverityCritical,
			EmployeeID: b.EmployeeID,
			Message:    fmt.Sprintf("counters below zero: %v", neg),
			Details: map[string]string{
				"accrued_days":          b.AccruedDays.String(),
				"enjoyed_days":          b.EnjoyedDays.String(),
				"approved_pending_days": b.ApprovedPendingDays.String(),
				"available_days":        b.AvailableDays.String(),
			},
		})
	}
	return out, nil
}

func stalenessCheck(clock generic.Clock, st Staleness) func(context.Context, *Snapshot) ([]Finding, error) {
	return func(ctx context.Context, snap *Snapshot) ([]Finding, error) {
		balances, err := snap.Balances(ctx)
		if err != nil {
			return nil, err
		}
		today := generic.Today(clock)
		var out []Finding
		for _, b := range balances {
			var age int
			never := b.LastAccrualDate.IsZero()
			if !never {
				age = generic.DaysBetween(b.LastAccrualDate, today)
			}
			if !never && age <= st.WarnAfterDays {
				continue
			}
			sev := SeverityMedium
			if never || age > st.CriticalAfterDays {
				sev = SeverityHigh
			}
			msg := fmt.Sprintf("last accrual %s is %d days old", b.LastAccrualDate, age)
			if never {
				msg = "balance has never been accrued"
			}
			out = append(out, Finding{
				Check:      CheckAccrualStaleness,
				Type:       TypeStaleAccrual,
				Kind:       KindWarning,
				Severity:   sev,
				EmployeeID: b.EmployeeID,
				Message:    msg,
				Details:    map[string]string{"days_since_accrual": fmt.Sprint(age)},
			})
		}
		return out, nil
	}
}

// =============================================================================
// REQUEST CHECKS
// =============================================================================

func checkRequestStatus(ctx context.Context, snap *Snapshot) ([]Finding, error) {
	requests, err := snap.Requests(ctx)
	if err != nil {
		return nil, err
	}
	var out []Finding
	for _, r := range requests {
		if r.Status.Valid() {
			continue
		}
		out = append(out, Finding{
			Check:      CheckRequestStatus,
			Type:       TypeInvalidRequestStatus,
			Kind:       KindError,
			Severity:   SeverityHigh,
			EmployeeID: r.EmployeeID,
			RequestID:  r.ID,
			Message:    fmt.Sprintf("status %q is not a known request status", r.Status),
		})
	}
	return out, nil
}

// checkApprovedPending compares each balance's reservation with the sum of
// its hr_approved and scheduled requests.
func checkApprovedPending(ctx context.Context, snap *Snapshot) ([]Finding, error) {
	balances, err := snap.Balances(ctx)
	if err != nil {
		return nil, err
	}
	requests, err := snap.Requests(ctx)
	if err != nil {
		return nil, err
	}

	sums := make(map[string]decimal.Decimal)
	known := make(map[string]bool, len(balances))
	for _, b := range balances {
		known[b.EmployeeID] = true
	}

	var out []Finding
	for _, r := range requests {
		if !known[r.EmployeeID] {
			out = append(out, Finding{
				Check:      CheckApprovedPending,
				Type:       TypeOrphanedRequest,
				Kind:       KindError,
				Severity:   SeverityHigh,
				EmployeeID: r.EmployeeID,
				RequestID:  r.ID,
				Message:    "request has no balance",
			})
			continue
		}
		if r.Status.Reserving() {
			sums[r.EmployeeID] = sums[r.EmployeeID].Add(r.RequestedDays)
		}
	}

	for _, b := range balances {
		sum := sums[b.EmployeeID]
		if generic.WithinTolerance(sum, b.ApprovedPendingDays) {
			continue
		}
		out = append(out, Finding{
			Check:      CheckApprovedPending,
			Type:       TypeApprovedPendingMismatch,
			Kind:       KindError,
			Severity:   SeverityHigh,
			EmployeeID: b.EmployeeID,
			Message: fmt.Sprintf("approved pending %s, approved and scheduled requests sum %s",
				b.ApprovedPendingDays, sum),
			Details: map[string]string{
				"stored_approved_pending": b.ApprovedPendingDays.String(),
				"requests_sum":            sum.String(),
			},
		})
	}
	return out, nil
}

// checkUnaccountedEnjoyment requires an enjoy trail entry for every enjoyed
// request.
func checkUnaccountedEnjoyment(ctx context.Context, snap *Snapshot) ([]Finding, error) {
	requests, err := snap.Requests(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := snap.Entries(ctx)
	if err != nil {
		return nil, err
	}

	logged := make(map[string]bool)
	for _, e := range entries {
		if e.Action == vacation.ActionEnjoy && e.RequestID != "" {
			logged[e.RequestID] = true
		}
	}

	var out []Finding
	for _, r := range requests {
		if r.Status != vacation.StatusEnjoyed || logged[r.ID] {
			continue
		}
		out = append(out, Finding{
			Check:      CheckUnaccountedEnjoyment,
			Type:       TypeUnaccountedEnjoyment,
			Kind:       KindError,
			Severity:   SeverityHigh,
			EmployeeID: r.EmployeeID,
			RequestID:  r.ID,
			Message:    "enjoyed request has no enjoy entry in the audit trail",
		})
	}
	return out, nil
}

// =============================================================================
// TRAIL CHECKS
// =============================================================================

func checkAuditLogPII(ctx context.Context, snap *Snapshot) ([]Finding, error) {
	entries, err := snap.Entries(ctx)
	if err != nil {
		return nil, err
	}
	var out []Finding
	for _, e := range entries {
		keys := append(vacation.FindPII(e.PreviousState), vacation.FindPII(e.NewState)...)
		if len(keys) == 0 {
			continue
		}
		out = append(out, Finding{
			Check:      CheckAuditLogPII,
			Type:       TypePIIInAuditLog,
			Kind:       KindError,
			Severity:   SeverityCritical,
			EmployeeID: e.EmployeeID,
			RequestID:  e.RequestID,
			EntryID:    e.ID,
			Message:    fmt.Sprintf("audit entry carries personal data keys %v", keys),
		})
	}
	return out, nil
}
