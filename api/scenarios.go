/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate a fresh demo company with
	realistic data. Every scenario goes through the engine, exactly like
	API traffic does, so the audit trail and invariants hold for demo data too.

AVAILABLE SCENARIOS:

	new-employee:         Hired 90 days ago, nothing consumed yet
	approval-flow:        One request at each workflow stage
	returning-from-leave: Unpaid leave plus verified historical vacation
	commercial-base:      Balance moved from base 360 to base 365

HOW SCENARIOS WORK:
 1. Allocate a new company id (demo-<scenario>-<random>)
 2. Open balances as a demo admin
 3. Drive requests, suspensions, base changes through the engine

Dates are relative to the engine clock, so a scenario loaded today and one
loaded next month look the same.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "approval-flow"}

NOTE:

	Loading is refused unless Handler.ScenariosEnabled is set (development).

SEE ALSO:
  - handlers.go: Handler
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-employee",
		Name:        "New Employee",
		Description: "Hired 90 days ago on base 365, about 3.7 days accrued",
		Category:    "accrual",
	},
	{
		ID:          "approval-flow",
		Name:        "Approval Flow",
		Description: "Two-year veteran with requests requested, leader-approved, HR-approved and scheduled",
		Category:    "workflow",
	},
	{
		ID:          "returning-from-leave",
		Name:        "Returning From Leave",
		Description: "60-day unpaid leave last year plus 10 verified historical days",
		Category:    "ledgers",
	},
	{
		ID:          "commercial-base",
		Name:        "Commercial Base Change",
		Description: "Hired on base 360, switched to base 365 with the adjustment recorded",
		Category:    "ledgers",
	},
}

const (
	demoAdmin  = "demo-admin"
	demoLeader = "demo-leader"
)

type scenarioLoader func(ctx context.Context, actor vacation.Actor) ([]string, error)

func (h *Handler) scenarioLoaders() map[string]scenarioLoader {
	return map[string]scenarioLoader{
		"new-employee":         h.loadNewEmployeeScenario,
		"approval-flow":        h.loadApprovalFlowScenario,
		"returning-from-leave": h.loadReturningFromLeaveScenario,
		"commercial-base":      h.loadCommercialBaseScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a scenario into a new demo company.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if !h.ScenariosEnabled {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return
	}

	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	loader, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	companyID := fmt.Sprintf("demo-%s-%s", req.ScenarioID, uuid.NewString()[:8])
	actor := vacation.Actor{UserID: demoAdmin, CompanyID: companyID, Role: vacation.RoleAdmin}

	employees, err := loader(r.Context(), actor)
	if err != nil {
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.Logger.InfoContext(r.Context(), "scenario loaded",
		"scenario", req.ScenarioID, "company_id", companyID, "employees", len(employees))

	writeJSON(w, http.StatusCreated, ScenarioLoadResponse{
		ScenarioID: req.ScenarioID,
		CompanyID:  companyID,
		Employees:  employees,
	})
}

// =============================================================================
// LOADERS
// =============================================================================

func (h *Handler) openDemoBalance(ctx context.Context, actor vacation.Actor, employeeID string,
	hire generic.TimePoint, base vacation.CalculationBase) error {

	_, err := h.Engine.OpenBalance(ctx, actor, vacation.OpenBalanceInput{
		EmployeeID: employeeID,
		LeaderID:   demoLeader,
		HireDate:   hire,
		Base:       base,
	})
	return err
}

func (h *Handler) loadNewEmployeeScenario(ctx context.Context, actor vacation.Actor) ([]string, error) {
	today := h.Engine.Today()
	if err := h.openDemoBalance(ctx, actor, "emp-new", today.AddDays(-90), vacation.Base365); err != nil {
		return nil, err
	}
	return []string{"emp-new"}, nil
}

func (h *Handler) loadApprovalFlowScenario(ctx context.Context, actor vacation.Actor) ([]string, error) {
	const emp = "emp-veteran"
	today := h.Engine.Today()
	if err := h.openDemoBalance(ctx, actor, emp, today.AddYears(-2), vacation.Base365); err != nil {
		return nil, err
	}

	// One five-day request per stage, a month apart.
	stages := []vacation.Status{
		vacation.StatusRequested,
		vacation.StatusLeaderApproved,
		vacation.StatusHRApproved,
		vacation.StatusScheduled,
	}
	for i, stage := range stages {
		start := today.AddDays(30 * (i + 1))
		req, err := h.Engine.CreateRequest(ctx, actor, actor.CompanyID, vacation.CreateRequestInput{
			EmployeeID:    emp,
			RequestedDays: decimal.NewFromInt(5),
			StartDate:     start,
			EndDate:       start.AddDays(6),
		})
		if err != nil {
			return nil, err
		}
		if err := h.advanceTo(ctx, actor, req, stage); err != nil {
			return nil, err
		}
	}
	return []string{emp}, nil
}

// advanceTo walks a new request through the workflow up to the target stage.
func (h *Handler) advanceTo(ctx context.Context, actor vacation.Actor, req *vacation.Request, target vacation.Status) error {
	companyID := actor.CompanyID
	if target == vacation.StatusRequested {
		return nil
	}
	if _, _, err := h.Engine.LeaderDecision(ctx, actor, companyID, req.ID, true, "demo approval"); err != nil {
		return err
	}
	if target == vacation.StatusLeaderApproved {
		return nil
	}
	if _, _, err := h.Engine.HRDecision(ctx, actor, companyID, req.ID, true, "demo approval"); err != nil {
		return err
	}
	if target == vacation.StatusHRApproved {
		return nil
	}
	_, _, err := h.Engine.ScheduleRequest(ctx, actor, companyID, req.ID, req.StartDate, req.EndDate)
	return err
}

func (h *Handler) loadReturningFromLeaveScenario(ctx context.Context, actor vacation.Actor) ([]string, error) {
	const emp = "emp-returning"
	today := h.Engine.Today()
	hire := today.AddYears(-3)
	if err := h.openDemoBalance(ctx, actor, emp, hire, vacation.Base365); err != nil {
		return nil, err
	}

	leaveStart := today.AddYears(-1)
	if _, _, err := h.Engine.RegisterSuspension(ctx, actor, actor.CompanyID, emp,
		leaveStart, leaveStart.AddDays(59), "unpaid leave"); err != nil {
		return nil, err
	}

	enjoyedStart := hire.AddYears(1)
	rec, _, err := h.Engine.RegisterHistorical(ctx, actor, actor.CompanyID, vacation.HistoricalInput{
		EmployeeID:       emp,
		ServicePeriod:    generic.Period{Start: hire, End: hire.AddYears(1).AddDays(-1)},
		DaysEnjoyed:      decimal.NewFromInt(10),
		EnjoyedStartDate: enjoyedStart,
		EnjoyedEndDate:   enjoyedStart.AddDays(13),
		Type:             vacation.HistoricalEnjoyed,
	})
	if err != nil {
		return nil, err
	}
	if _, err := h.Engine.VerifyHistorical(ctx, actor, actor.CompanyID, rec.ID); err != nil {
		return nil, err
	}
	return []string{emp}, nil
}

func (h *Handler) loadCommercialBaseScenario(ctx context.Context, actor vacation.Actor) ([]string, error) {
	const emp = "emp-commercial"
	today := h.Engine.Today()
	if err := h.openDemoBalance(ctx, actor, emp, today.AddDays(-540), vacation.Base360); err != nil {
		return nil, err
	}
	if _, _, err := h.Engine.ChangeCalculationBase(ctx, actor, actor.CompanyID, emp,
		vacation.Base365, "payroll moved to civil calendar"); err != nil {
		return nil, err
	}
	return []string{emp}, nil
}
