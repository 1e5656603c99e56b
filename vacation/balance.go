/*
balance.go - Vacation balance and its invariant

PURPOSE:
  One Balance per (company, employee). Four counters plus one derived value:

    available = accrued - enjoyed - approvedPending        (± 0.01)

  enjoyed is everything consumed, historical records included;
  historicalEnjoyed is the part of it registered through the historical
  ledger, kept for reporting.

ENFORCEMENT:
  The counters are unexported. The only way to change them is Apply, which
  recomputes available and refuses any result with a counter below -0.01.
  A refused mutation leaves the balance untouched and returns a
  DataIntegrityError (NEGATIVE_BALANCE): negatives are surfaced, never clamped.

PERSISTENCE:
  Stores move BalanceState, the exported snapshot. BalanceFromState is the
  single door back into a Balance and rejects corrupt snapshots so that
  mutations never build on drifted state. The audit engine reads raw
  BalanceState values and reports the same problems without failing.

SEE ALSO:
  - engine.go: every mutation path goes through Apply
  - audit/checks.go: balance_integrity and negative_balance checks
*/
package vacation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// PROFILE AND COUNTERS
// =============================================================================

// BalanceProfile is the non-counter part of a balance.
type BalanceProfile struct {
	CompanyID             string                 `json:"company_id"`
	EmployeeID            string                 `json:"employee_id"`
	LeaderID              string                 `json:"leader_id"`
	HireDate              generic.TimePoint      `json:"hire_date"`
	CalculationBase       CalculationBase        `json:"calculation_base"`
	WorkTimeFactor        decimal.Decimal        `json:"work_time_factor"`
	LastAccrualDate       generic.TimePoint      `json:"last_accrual_date"`
	SuspensionPeriods     []SuspensionPeriod     `json:"suspension_periods"`
	BaseChangeHistory     []BaseChangeRecord     `json:"base_change_history"`
	HireDateChangeHistory []HireDateChangeRecord `json:"hire_date_change_history"`
	Version               int64                  `json:"version"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// Counters are the day quantities of a balance.
type Counters struct {
	AccruedDays           decimal.Decimal `json:"accrued_days"`
	EnjoyedDays           decimal.Decimal `json:"enjoyed_days"`
	HistoricalEnjoyedDays decimal.Decimal `json:"historical_enjoyed_days"`
	ApprovedPendingDays   decimal.Decimal `json:"approved_pending_days"`
	AvailableDays         decimal.Decimal `json:"available_days"`
}

// DerivedAvailable is accrued - enjoyed - approvedPending.
func (c Counters) DerivedAvailable() decimal.Decimal {
	return c.AccruedDays.Sub(c.EnjoyedDays).Sub(c.ApprovedPendingDays)
}

// Negative lists the counters (stored and derived) below -0.01.
func (c Counters) Negative() []string {
	var out []string
	check := func(name string, v decimal.Decimal) {
		if generic.BelowZero(v) {
			out = append(out, fmt.Sprintf("%s=%s", name, v))
		}
	}
	check("accrued_days", c.AccruedDays)
	check("enjoyed_days", c.EnjoyedDays)
	check("historical_enjoyed_days", c.HistoricalEnjoyedDays)
	check("approved_pending_days", c.ApprovedPendingDays)
	check("available_days", c.AvailableDays)
	if derived := c.DerivedAvailable(); !derived.Equal(c.AvailableDays) {
		check("derived_available_days", derived)
	}
	return out
}

// BalanceState is the persisted shape of a Balance.
type BalanceState struct {
	BalanceProfile
	Counters
}

// Key identifies the balance for locking.
func (s BalanceState) Key() string { return BalanceKey(s.CompanyID, s.EmployeeID) }

// BalanceKey is the single-writer key of a balance.
func BalanceKey(companyID, employeeID string) string { return companyID + "/" + employeeID }

// =============================================================================
// BALANCE
// =============================================================================

// Balance is a vacation balance whose counters can only change through Apply.
type Balance struct {
	BalanceProfile
	counters Counters
}

// NewBalance starts an empty balance for a freshly onboarded employee.
func NewBalance(profile BalanceProfile) *Balance {
	return &Balance{
		BalanceProfile: profile,
		counters: Counters{
			AccruedDays:           decimal.Zero,
			EnjoyedDays:           decimal.Zero,
			HistoricalEnjoyedDays: decimal.Zero,
			ApprovedPendingDays:   decimal.Zero,
			AvailableDays:         decimal.Zero,
		},
	}
}

// BalanceFromState rebuilds a Balance from storage. It refuses states that
// already break the invariant.
func BalanceFromState(s BalanceState) (*Balance, error) {
	if neg := s.Counters.Negative(); len(neg) > 0 {
		return nil, &generic.DataIntegrityError{
			Rule: generic.ErrNegativeBalance, CompanyID: s.CompanyID, EmployeeID: s.EmployeeID,
			Message: fmt.Sprintf("stored counters below zero: %v", neg),
		}
	}
	if derived := s.DerivedAvailable(); !generic.WithinTolerance(derived, s.AvailableDays) {
		return nil, &generic.DataIntegrityError{
			Rule: generic.ErrBalanceDrift, CompanyID: s.CompanyID, EmployeeID: s.EmployeeID,
			Message: fmt.Sprintf("stored available %s, derived %s", s.AvailableDays, derived),
		}
	}
	b := &Balance{BalanceProfile: s.BalanceProfile, counters: s.Counters}
	b.counters.AvailableDays = s.DerivedAvailable()
	return b, nil
}

// State snapshots the balance for storage.
func (b *Balance) State() BalanceState {
	profile := b.BalanceProfile
	profile.SuspensionPeriods = append([]SuspensionPeriod(nil), b.SuspensionPeriods...)
	profile.BaseChangeHistory = append([]BaseChangeRecord(nil), b.BaseChangeHistory...)
	profile.HireDateChangeHistory = append([]HireDateChangeRecord(nil), b.HireDateChangeHistory...)
	return BalanceState{BalanceProfile: profile, Counters: b.counters}
}

func (b *Balance) AccruedDays() decimal.Decimal           { return b.counters.AccruedDays }
func (b *Balance) EnjoyedDays() decimal.Decimal           { return b.counters.EnjoyedDays }
func (b *Balance) HistoricalEnjoyedDays() decimal.Decimal { return b.counters.HistoricalEnjoyedDays }
func (b *Balance) ApprovedPendingDays() decimal.Decimal   { return b.counters.ApprovedPendingDays }
func (b *Balance) AvailableDays() decimal.Decimal         { return b.counters.AvailableDays }
func (b *Balance) Counters() Counters                     { return b.counters }

func (b *Balance) Key() string { return BalanceKey(b.CompanyID, b.EmployeeID) }

// AccrualOptions returns the inputs accrual needs from this balance.
func (b *Balance) AccrualOptions() AccrualOptions {
	return AccrualOptions{
		Base:           b.CalculationBase,
		WorkTimeFactor: b.WorkTimeFactor,
		Suspensions:    b.SuspensionPeriods,
	}
}

// =============================================================================
// ENFORCER
// =============================================================================

// Mutation describes a counter change. SetAccrued replaces accrued days; the
// deltas are added to the other counters.
type Mutation struct {
	SetAccrued             *decimal.Decimal
	EnjoyedDelta           decimal.Decimal
	HistoricalEnjoyedDelta decimal.Decimal
	ApprovedPendingDelta   decimal.Decimal
}

// Apply changes the counters and recomputes available days. On violation the
// balance is left unchanged.
func (b *Balance) Apply(m Mutation) error {
	next := b.counters
	if m.SetAccrued != nil {
		next.AccruedDays = *m.SetAccrued
	}
	next.EnjoyedDays = next.EnjoyedDays.Add(m.EnjoyedDelta)
	next.HistoricalEnjoyedDays = next.HistoricalEnjoyedDays.Add(m.HistoricalEnjoyedDelta)
	next.ApprovedPendingDays = next.ApprovedPendingDays.Add(m.ApprovedPendingDelta)
	next.AvailableDays = next.DerivedAvailable()

	if neg := next.Negative(); len(neg) > 0 {
		return &generic.DataIntegrityError{
			Rule: generic.ErrNegativeBalance, CompanyID: b.CompanyID, EmployeeID: b.EmployeeID,
			Message: fmt.Sprintf("mutation would leave %v", neg),
		}
	}
	b.counters = next
	return nil
}

// Reserve moves days into approvedPending (HR approval).
func (b *Balance) Reserve(days decimal.Decimal) error {
	return b.Apply(Mutation{ApprovedPendingDelta: days})
}

// Release gives back reserved days (cancellation after HR approval).
func (b *Balance) Release(days decimal.Decimal) error {
	return b.Apply(Mutation{ApprovedPendingDelta: days.Neg()})
}

// Consume moves reserved days into enjoyed. Available days do not change.
func (b *Balance) Consume(days decimal.Decimal) error {
	return b.Apply(Mutation{EnjoyedDelta: days, ApprovedPendingDelta: days.Neg()})
}

// SetAccrued replaces accrued days with a fresh computation.
func (b *Balance) SetAccrued(days decimal.Decimal) error {
	return b.Apply(Mutation{SetAccrued: &days})
}

// RecordHistorical adds pre-onboarding consumption.
func (b *Balance) RecordHistorical(days decimal.Decimal) error {
	return b.Apply(Mutation{EnjoyedDelta: days, HistoricalEnjoyedDelta: days})
}

// EnsureAvailable fails with InsufficientBalanceError when fewer than days
// are available.
func (b *Balance) EnsureAvailable(days decimal.Decimal) error {
	if b.counters.AvailableDays.LessThan(days) {
		return &generic.InsufficientBalanceError{
			EmployeeID: b.EmployeeID,
			Available:  b.counters.AvailableDays,
			Requested:  days,
		}
	}
	return nil
}

// snapshot is the PII-free view written to the audit trail.
func (b *Balance) snapshot() map[string]any {
	return map[string]any{
		"accrued_days":            b.counters.AccruedDays.String(),
		"enjoyed_days":            b.counters.EnjoyedDays.String(),
		"historical_enjoyed_days": b.counters.HistoricalEnjoyedDays.String(),
		"approved_pending_days":   b.counters.ApprovedPendingDays.String(),
		"available_days":          b.counters.AvailableDays.String(),
		"calculation_base":        int(b.CalculationBase),
		"hire_date":               b.HireDate.String(),
	}
}
