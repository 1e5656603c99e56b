// Package vacation implements Colombian statutory vacation: accrual of 15
// working days per year of service, the leader -> HR approval workflow, and the
// ledgers (suspensions, base changes, historical records) that adjust balances.
package vacation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
)

// AnnualEntitlement is the legal vacation grant per full year of service.
var AnnualEntitlement = decimal.NewFromInt(15)

// =============================================================================
// CALCULATION BASE
// =============================================================================

// CalculationBase is the day-count convention a balance accrues under.
type CalculationBase int

const (
	// Base360 is the commercial year: 30-day months, 15/360 per day.
	Base360 CalculationBase = 360
	// Base365 is the civil year: 15/365 per day, 15/366 in leap years.
	Base365 CalculationBase = 365
)

func (b CalculationBase) Valid() bool { return b == Base360 || b == Base365 }

// YearDays is the denominator of the daily rate for the given calendar year.
func (b CalculationBase) YearDays(year int) int {
	if b == Base360 {
		return 360
	}
	return generic.DaysInYear(year)
}

// CountDays counts the days of a period under this convention.
func (b CalculationBase) CountDays(p generic.Period) int {
	if b == Base360 {
		return p.DayCount360()
	}
	return p.DayCount()
}

func (b CalculationBase) String() string { return fmt.Sprintf("base%d", int(b)) }

// =============================================================================
// ACTORS
// =============================================================================

// Role is supplied by the identity provider with every operation.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleLeader   Role = "leader"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleLeader, RoleHR, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor is the pre-authenticated caller of an operation.
type Actor struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      Role   `json:"role"`
}

// SystemActor is used by scheduled jobs.
func SystemActor(companyID string) Actor {
	return Actor{UserID: "system", CompanyID: companyID, Role: RoleSystem}
}

func (a Actor) privileged() bool { return a.Role == RoleHR || a.Role == RoleAdmin }

// =============================================================================
// LEDGER RECORDS EMBEDDED IN A BALANCE
// =============================================================================

// SuspensionPeriod is an unpaid leave or sanction during which no vacation
// accrues. Both ends are included.
type SuspensionPeriod struct {
	ID        string            `json:"id"`
	StartDate generic.TimePoint `json:"start_date"`
	EndDate   generic.TimePoint `json:"end_date"`
	Reason    string            `json:"reason"`
	DaysCount int               `json:"days_count"`
	CreatedBy string            `json:"created_by"`
	CreatedAt time.Time         `json:"created_at"`
}

func (s SuspensionPeriod) Period() generic.Period {
	return generic.Period{Start: s.StartDate, End: s.EndDate}
}

// BaseChangeRecord logs a switch between 360 and 365 bases.
type BaseChangeRecord struct {
	ID                string            `json:"id"`
	FromBase          CalculationBase   `json:"from_base"`
	ToBase            CalculationBase   `json:"to_base"`
	ChangeDate        generic.TimePoint `json:"change_date"`
	AccruedAtChange   decimal.Decimal   `json:"accrued_at_change"`
	AdjustmentApplied decimal.Decimal   `json:"adjustment_applied"`
	Reason            string            `json:"reason"`
	PerformedBy       string            `json:"performed_by"`
	// Reversal marks a record written by RevertBaseChange.
	Reversal bool `json:"reversal"`
	// Reverted is set on the record a reversal undid.
	Reverted  bool      `json:"reverted"`
	CreatedAt time.Time `json:"created_at"`
}

// HireDateChangeRecord logs a correction of the hire date.
type HireDateChangeRecord struct {
	PreviousHireDate generic.TimePoint `json:"previous_hire_date"`
	NewHireDate      generic.TimePoint `json:"new_hire_date"`
	ChangeDate       generic.TimePoint `json:"change_date"`
	AccruedBefore    decimal.Decimal   `json:"accrued_before"`
	AccruedAfter     decimal.Decimal   `json:"accrued_after"`
	Reason           string            `json:"reason"`
	PerformedBy      string            `json:"performed_by"`
}

// =============================================================================
// HISTORICAL RECORDS
// =============================================================================

// HistoricalType distinguishes days taken from days paid out.
type HistoricalType string

const (
	HistoricalEnjoyed     HistoricalType = "enjoyed"
	HistoricalCompensated HistoricalType = "compensated"
)

func (t HistoricalType) Valid() bool { return t == HistoricalEnjoyed || t == HistoricalCompensated }

// HistoricalRecord is vacation consumed before the employee was onboarded
// into the engine. Append-only; verification is a one-way flag.
type HistoricalRecord struct {
	ID               string            `json:"id"`
	CompanyID        string            `json:"company_id"`
	EmployeeID       string            `json:"employee_id"`
	ServicePeriod    generic.Period    `json:"service_period"`
	DaysEnjoyed      decimal.Decimal   `json:"days_enjoyed"`
	EnjoyedStartDate generic.TimePoint `json:"enjoyed_start_date"`
	EnjoyedEndDate   generic.TimePoint `json:"enjoyed_end_date"`
	Type             HistoricalType    `json:"type"`
	IsVerified       bool              `json:"is_verified"`
	VerifiedBy       string            `json:"verified_by,omitempty"`
	VerifiedAt       *time.Time        `json:"verified_at,omitempty"`
	RegisteredBy     string            `json:"registered_by"`
	CreatedAt        time.Time         `json:"created_at"`
}

// =============================================================================
// AUDIT TRAIL ENTRY
// =============================================================================

// AuditAction names what an audit log entry records.
type AuditAction string

const (
	ActionOpenBalance        AuditAction = "open_balance"
	ActionCreate             AuditAction = "create"
	ActionLeaderApprove      AuditAction = "leader_approve"
	ActionLeaderReject       AuditAction = "leader_reject"
	ActionHRApprove          AuditAction = "hr_approve"
	ActionHRReject           AuditAction = "hr_reject"
	ActionSchedule           AuditAction = "schedule"
	ActionEnjoy              AuditAction = "enjoy"
	ActionCancel             AuditAction = "cancel"
	ActionAccrue             AuditAction = "accrue"
	ActionRegisterSuspension AuditAction = "register_suspension"
	ActionRemoveSuspension   AuditAction = "remove_suspension"
	ActionChangeBase         AuditAction = "change_base"
	ActionRevertBaseChange   AuditAction = "revert_base_change"
	ActionChangeHireDate     AuditAction = "change_hire_date"
	ActionRegisterHistorical AuditAction = "register_historical"
	ActionVerifyHistorical   AuditAction = "verify_historical"
)

// AuditLogEntry is one append-only trail record. Snapshots hold identifiers
// and numbers only; the trail refuses personal data.
type AuditLogEntry struct {
	ID            string          `json:"id"`
	CompanyID     string          `json:"company_id"`
	EmployeeID    string          `json:"employee_id"`
	Action        AuditAction     `json:"action"`
	RequestID     string          `json:"request_id,omitempty"`
	PerformedBy   string          `json:"performed_by"`
	PreviousState map[string]any  `json:"previous_state,omitempty"`
	NewState      map[string]any  `json:"new_state,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Timestamp     time.Time       `json:"timestamp"`
}
