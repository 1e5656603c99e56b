/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state through
	the engine, and that the resulting company passes the integrity audit.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/audit"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

func (s *testServer) loadScenario(t *testing.T, id string) ScenarioLoadResponse {
	t.Helper()
	s.h.ScenariosEnabled = true
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", nil, LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ScenarioLoadResponse](t, rec)
}

func demoActor(companyID string) vacation.Actor {
	return vacation.Actor{UserID: demoAdmin, CompanyID: companyID, Role: vacation.RoleAdmin}
}

func TestScenario_Disabled(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", nil, LoadScenarioRequest{ScenarioID: "new-employee"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScenario_Unknown(t *testing.T) {
	s := newTestServer(t)
	s.h.ScenariosEnabled = true
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", nil, LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenario_ListMatchesLoaders(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/scenarios", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	listed := decodeBody[[]ScenarioDTO](t, rec)
	loaders := s.h.scenarioLoaders()
	assert.Len(t, listed, len(loaders))
	for _, sc := range listed {
		assert.Contains(t, loaders, sc.ID)
	}
}

func TestScenario_NewEmployee(t *testing.T) {
	// GIVEN: The new-employee scenario
	// WHEN: Loading it into a fresh company
	// THEN: One balance with 90 days of accrual and nothing consumed

	s := newTestServer(t)
	out := s.loadScenario(t, "new-employee")
	require.Equal(t, []string{"emp-new"}, out.Employees)

	b, err := s.h.Engine.GetBalance(context.Background(), demoActor(out.CompanyID), out.CompanyID, "emp-new")
	require.NoError(t, err)
	// 90 days of 2023 at 15/365
	assert.Equal(t, "3.6986", b.AccruedDays().String())
	assert.True(t, b.EnjoyedDays().IsZero())
}

func TestScenario_ApprovalFlow(t *testing.T) {
	s := newTestServer(t)
	out := s.loadScenario(t, "approval-flow")
	ctx := context.Background()
	actor := demoActor(out.CompanyID)

	reqs, err := s.h.Engine.ListRequests(ctx, actor, out.CompanyID, "emp-veteran")
	require.NoError(t, err)
	require.Len(t, reqs, 4)

	statuses := make([]vacation.Status, len(reqs))
	for i, r := range reqs {
		statuses[i] = r.Status
	}
	assert.ElementsMatch(t, []vacation.Status{
		vacation.StatusRequested, vacation.StatusLeaderApproved, vacation.StatusHRApproved, vacation.StatusScheduled,
	}, statuses)

	b, err := s.h.Engine.GetBalance(ctx, actor, out.CompanyID, "emp-veteran")
	require.NoError(t, err)
	assert.Equal(t, "10", b.ApprovedPendingDays().String(), "hr_approved and scheduled reserve 5 days each")
}

func TestScenario_ReturningFromLeave(t *testing.T) {
	s := newTestServer(t)
	out := s.loadScenario(t, "returning-from-leave")
	ctx := context.Background()
	actor := demoActor(out.CompanyID)

	b, err := s.h.Engine.GetBalance(ctx, actor, out.CompanyID, "emp-returning")
	require.NoError(t, err)
	require.Len(t, b.SuspensionPeriods, 1)
	assert.Equal(t, 60, b.SuspensionPeriods[0].DaysCount)
	assert.Equal(t, "10", b.HistoricalEnjoyedDays().String())

	recs, err := s.h.Engine.ListHistorical(ctx, actor, out.CompanyID, "emp-returning")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsVerified)
}

func TestScenario_CommercialBase(t *testing.T) {
	s := newTestServer(t)
	out := s.loadScenario(t, "commercial-base")

	b, err := s.h.Engine.GetBalance(context.Background(), demoActor(out.CompanyID), out.CompanyID, "emp-commercial")
	require.NoError(t, err)
	assert.Equal(t, vacation.Base365, b.CalculationBase)
	require.Len(t, b.BaseChangeHistory, 1)
	assert.Equal(t, vacation.Base360, b.BaseChangeHistory[0].FromBase)
}

func TestScenario_AllPassAudit(t *testing.T) {
	for _, sc := range scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			s := newTestServer(t)
			s.clock.Set(generic.MustDate("2024-06-15"))
			out := s.loadScenario(t, sc.ID)

			report, err := s.h.Auditor.Run(context.Background(), out.CompanyID)
			require.NoError(t, err)
			assert.Equal(t, audit.StatusPassed, report.Status, "%+v", report.Findings.Errors)
		})
	}
}
