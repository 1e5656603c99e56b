/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Dates travel as
  "YYYY-MM-DD" (generic.TimePoint), day quantities as decimal strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done by the engine, not in DTOs. DTOs are pure data carriers;
  a malformed date or number fails JSON decoding and becomes a 400.

SEE ALSO:
  - handlers.go: Uses these types
  - vacation/: domain types embedded in responses
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// BALANCES
// =============================================================================

// OpenBalanceRequest onboards an employee.
type OpenBalanceRequest struct {
	EmployeeID      string                   `json:"employee_id"`
	LeaderID        string                   `json:"leader_id"`
	HireDate        generic.TimePoint        `json:"hire_date"`
	CalculationBase vacation.CalculationBase `json:"calculation_base,omitempty"`
	WorkTimeFactor  *decimal.Decimal         `json:"work_time_factor,omitempty"`
}

// BalanceDTO is a balance plus the two-decimal figure shown to users.
type BalanceDTO struct {
	vacation.BalanceState
	DisplayAvailableDays decimal.Decimal `json:"display_available_days"`
}

func toBalanceDTO(b *vacation.Balance) *BalanceDTO {
	if b == nil {
		return nil
	}
	return &BalanceDTO{
		BalanceState:         b.State(),
		DisplayAvailableDays: generic.Round2(b.AvailableDays()),
	}
}

// SuspensionRequest registers an unpaid leave or sanction.
type SuspensionRequest struct {
	StartDate generic.TimePoint `json:"start_date"`
	EndDate   generic.TimePoint `json:"end_date"`
	Reason    string            `json:"reason"`
}

// ReasonRequest carries the justification of an adjustment or cancellation.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// BaseChangeRequest switches the calculation base.
type BaseChangeRequest struct {
	CalculationBase vacation.CalculationBase `json:"calculation_base"`
	Reason          string                   `json:"reason"`
}

// HireDateChangeRequest corrects the hire date.
type HireDateChangeRequest struct {
	HireDate generic.TimePoint `json:"hire_date"`
	Reason   string            `json:"reason"`
}

// BalanceChangeResponse wraps a balance and the ledger record a change wrote.
type BalanceChangeResponse struct {
	Balance *BalanceDTO `json:"balance"`
	Record  any         `json:"record,omitempty"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// CreateVacationRequest files a vacation request.
type CreateVacationRequest struct {
	EmployeeID    string            `json:"employee_id"`
	RequestedDays decimal.Decimal   `json:"requested_days"`
	StartDate     generic.TimePoint `json:"start_date"`
	EndDate       generic.TimePoint `json:"end_date"`
}

// DecisionRequest is a leader or HR decision. Comments are required when
// rejecting.
type DecisionRequest struct {
	Approve  bool   `json:"approve"`
	Comments string `json:"comments"`
}

// ScheduleRequest fixes the final dates of an approved request.
type ScheduleRequest struct {
	StartDate generic.TimePoint `json:"start_date"`
	EndDate   generic.TimePoint `json:"end_date"`
}

// TransitionResponse is returned by every workflow step.
type TransitionResponse struct {
	Request *vacation.Request `json:"request"`
	Balance *BalanceDTO       `json:"balance,omitempty"`
}

// =============================================================================
// HISTORICAL RECORDS
// =============================================================================

// HistoricalRequest registers vacation consumed before onboarding.
type HistoricalRequest struct {
	EmployeeID       string                  `json:"employee_id"`
	ServiceStart     generic.TimePoint       `json:"service_start"`
	ServiceEnd       generic.TimePoint       `json:"service_end"`
	DaysEnjoyed      decimal.Decimal         `json:"days_enjoyed"`
	EnjoyedStartDate generic.TimePoint       `json:"enjoyed_start_date"`
	EnjoyedEndDate   generic.TimePoint       `json:"enjoyed_end_date"`
	Type             vacation.HistoricalType `json:"type"`
}

// HistoricalResponse wraps a registered record and the updated balance.
type HistoricalResponse struct {
	Record  *vacation.HistoricalRecord `json:"record"`
	Balance *BalanceDTO                `json:"balance,omitempty"`
}

// =============================================================================
// ACCRUAL
// =============================================================================

// ProjectionRequest computes accrual for arbitrary inputs without a stored
// balance.
type ProjectionRequest struct {
	HireDate        generic.TimePoint        `json:"hire_date"`
	AsOf            generic.TimePoint        `json:"as_of"`
	CalculationBase vacation.CalculationBase `json:"calculation_base,omitempty"`
	WorkTimeFactor  *decimal.Decimal         `json:"work_time_factor,omitempty"`
	Suspensions     []SuspensionRequest      `json:"suspensions,omitempty"`
}

func (p ProjectionRequest) options() vacation.AccrualOptions {
	opts := vacation.AccrualOptions{Base: p.CalculationBase, WorkTimeFactor: decimal.NewFromInt(1)}
	if opts.Base == 0 {
		opts.Base = vacation.Base365
	}
	if p.WorkTimeFactor != nil {
		opts.WorkTimeFactor = *p.WorkTimeFactor
	}
	for _, s := range p.Suspensions {
		opts.Suspensions = append(opts.Suspensions, vacation.SuspensionPeriod{
			StartDate: s.StartDate, EndDate: s.EndDate, Reason: s.Reason,
		})
	}
	return opts
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ScenarioLoadResponse names the demo company a scenario was loaded into.
type ScenarioLoadResponse struct {
	ScenarioID string   `json:"scenario_id"`
	CompanyID  string   `json:"company_id"`
	Employees  []string `json:"employees"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
