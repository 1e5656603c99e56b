/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Actor extraction and tenancy (401/403)
- Full request lifecycle over HTTP (open -> request -> approvals -> enjoy)
- Error mapping (404, 409, 422, 400)
- Company jobs (accrual sweep, audit run, latest report)
- Stateless projection and health
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/audit"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/store/memory"
	"github.com/warp/vacation-engine/vacation"
)

const company = "co-1"

var (
	hr       = vacation.Actor{UserID: "hr-1", CompanyID: company, Role: vacation.RoleHR}
	leader   = vacation.Actor{UserID: "lead-1", CompanyID: company, Role: vacation.RoleLeader}
	employee = vacation.Actor{UserID: "emp-1", CompanyID: company, Role: vacation.RoleEmployee}
)

type testServer struct {
	router *chi.Mux
	store  *memory.Memory
	clock  *generic.FixedClock
	h      *Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := generic.NewFixedClock(generic.MustDate("2024-01-01"))
	store := memory.New()
	engine := vacation.NewEngine(store, vacation.WithClock(clock))
	auditor := audit.NewEngine(store, store, audit.WithClock(clock))
	h := NewHandler(engine, auditor, nil)
	return &testServer{
		router: NewRouter(h, prometheus.NewRegistry()),
		store:  store,
		clock:  clock,
		h:      h,
	}
}

func (s *testServer) do(t *testing.T, method, path string, actor *vacation.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(HeaderActorID, actor.UserID)
		req.Header.Set(HeaderCompanyID, actor.CompanyID)
		req.Header.Set(HeaderActorRole, string(actor.Role))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) openBalance(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/companies/co-1/balances", &hr, map[string]any{
		"employee_id": "emp-1",
		"leader_id":   "lead-1",
		"hire_date":   "2023-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) createRequest(t *testing.T, start, end string, days int) vacation.Request {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/companies/co-1/requests", &employee, map[string]any{
		"requested_days": days,
		"start_date":     start,
		"end_date":       end,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return *decodeBody[TransitionResponse](t, rec).Request
}

func TestHandlers_MissingActorIs401(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/companies/co-1/balances/emp-1", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeBody[ErrorResponse](t, rec).Code)
}

func TestHandlers_OpenBalance(t *testing.T) {
	// GIVEN: An employee hired 2023-01-01, today 2024-01-01
	// WHEN: HR opens the balance
	// THEN: One full year is accrued: 15 days available

	s := newTestServer(t)
	s.openBalance(t)

	rec := s.do(t, http.MethodGet, "/api/companies/co-1/balances/emp-1", &employee, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	b := decodeBody[BalanceDTO](t, rec)
	assert.InDelta(t, 15.0, b.AccruedDays.InexactFloat64(), 0.01)
	assert.InDelta(t, 15.0, b.AvailableDays.InexactFloat64(), 0.01)
	assert.Equal(t, "15", b.DisplayAvailableDays.String())
	assert.Equal(t, vacation.Base365, b.CalculationBase)
}

func TestHandlers_OpenBalanceTwiceConflicts(t *testing.T) {
	s := newTestServer(t)
	s.openBalance(t)

	rec := s.do(t, http.MethodPost, "/api/companies/co-1/balances", &hr, map[string]any{
		"employee_id": "emp-1", "leader_id": "lead-1", "hire_date": "2023-01-01",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlers_OtherCompanyForbidden(t *testing.T) {
	s := newTestServer(t)
	s.openBalance(t)

	outsider := vacation.Actor{UserID: "hr-9", CompanyID: "co-2", Role: vacation.RoleHR}
	rec := s.do(t, http.MethodGet, "/api/companies/co-1/balances/emp-1", &outsider, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/companies/co-1/balances", &outsider, map[string]any{
		"employee_id": "emp-2", "hire_date": "2023-01-01",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlers_RequestLifecycle(t *testing.T) {
	// GIVEN: A balance with 15 available days
	// WHEN: A 5-day request goes requested -> leader -> HR -> scheduled -> enjoyed
	// THEN: HR approval reserves 5 days and enjoyment moves them to enjoyed

	s := newTestServer(t)
	s.openBalance(t)
	req := s.createRequest(t, "2024-02-01", "2024-02-07", 5)
	assert.Equal(t, vacation.StatusRequested, req.Status)
	base := "/api/companies/co-1/requests/" + req.ID

	rec := s.do(t, http.MethodPost, base+"/leader-decision", &leader, DecisionRequest{Approve: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, vacation.StatusLeaderApproved, decodeBody[TransitionResponse](t, rec).Request.Status)

	rec = s.do(t, http.MethodPost, base+"/hr-decision", &hr, DecisionRequest{Approve: true, Comments: "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[TransitionResponse](t, rec)
	assert.Equal(t, vacation.StatusHRApproved, resp.Request.Status)
	assert.Equal(t, "5", resp.Balance.ApprovedPendingDays.String())
	assert.InDelta(t, 10.0, resp.Balance.AvailableDays.InexactFloat64(), 0.01)

	rec = s.do(t, http.MethodPost, base+"/schedule", &employee, map[string]any{
		"start_date": "2024-02-05", "end_date": "2024-02-11",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, vacation.StatusScheduled, decodeBody[TransitionResponse](t, rec).Request.Status)

	s.clock.Set(generic.MustDate("2024-02-05"))
	rec = s.do(t, http.MethodPost, base+"/enjoy", &hr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decodeBody[TransitionResponse](t, rec)
	assert.Equal(t, vacation.StatusEnjoyed, resp.Request.Status)
	assert.Equal(t, "5", resp.Balance.EnjoyedDays.String())
	assert.True(t, resp.Balance.ApprovedPendingDays.IsZero())

	rec = s.do(t, http.MethodGet, "/api/companies/co-1/requests?employee_id=emp-1", &employee, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]vacation.Request](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/companies/co-1/balances/emp-1/audit-log", &hr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]vacation.AuditLogEntry](t, rec)
	require.Len(t, entries, 6)
	assert.Equal(t, vacation.ActionOpenBalance, entries[0].Action)
	assert.Equal(t, vacation.ActionEnjoy, entries[5].Action)
}

func TestHandlers_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.openBalance(t)
	req := s.createRequest(t, "2024-02-01", "2024-02-07", 5)

	t.Run("insufficient balance is 422", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/companies/co-1/requests", &employee, map[string]any{
			"requested_days": 20, "start_date": "2024-03-01", "end_date": "2024-03-31",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "business_rule", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("overlap is 409", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/companies/co-1/requests", &employee, map[string]any{
			"requested_days": 2, "start_date": "2024-02-05", "end_date": "2024-02-10",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("illegal transition is 409", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/companies/co-1/requests/"+req.ID+"/schedule", &hr, map[string]any{
			"start_date": "2024-02-01", "end_date": "2024-02-07",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rejection without reason is 400", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/companies/co-1/requests/"+req.ID+"/leader-decision", &leader,
			DecisionRequest{Approve: false})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("employee cannot take HR decision", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/companies/co-1/requests/"+req.ID+"/hr-decision", &employee,
			DecisionRequest{Approve: true})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown request is 404", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/companies/co-1/requests/nope", &hr, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed date is 400", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/companies/co-1/requests", &employee, map[string]any{
			"requested_days": 1, "start_date": "01/02/2024", "end_date": "2024-02-02",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("future as_of is refused for accrual but allowed for projection", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/companies/co-1/balances/emp-1/accrual?as_of=2025-01-01", &hr, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = s.do(t, http.MethodGet, "/api/companies/co-1/balances/emp-1/projection?as_of=2025-01-01", &hr, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decodeBody[vacation.AccrualResult](t, rec)
		assert.InDelta(t, 30.0, res.AccruedDays.InexactFloat64(), 0.01)
	})
}

func TestHandlers_CancelReleasesReservedDays(t *testing.T) {
	s := newTestServer(t)
	s.openBalance(t)
	req := s.createRequest(t, "2024-02-01", "2024-02-07", 5)
	base := "/api/companies/co-1/requests/" + req.ID
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/leader-decision", &leader, DecisionRequest{Approve: true}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/hr-decision", &hr, DecisionRequest{Approve: true}).Code)

	rec := s.do(t, http.MethodPost, base+"/cancel", &employee, ReasonRequest{Reason: "plans changed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[TransitionResponse](t, rec)
	assert.Equal(t, vacation.StatusCancelled, resp.Request.Status)
	assert.True(t, resp.Balance.ApprovedPendingDays.IsZero())
	assert.InDelta(t, 15.0, resp.Balance.AvailableDays.InexactFloat64(), 0.01)
}

func TestHandlers_SuspensionAndBaseChange(t *testing.T) {
	s := newTestServer(t)
	s.openBalance(t)
	path := "/api/companies/co-1/balances/emp-1"

	rec := s.do(t, http.MethodPost, path+"/suspensions", &hr, SuspensionRequest{
		StartDate: generic.MustDate("2023-03-01"), EndDate: generic.MustDate("2023-03-30"), Reason: "unpaid leave",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decodeBody[BalanceChangeResponse](t, rec).Balance
	require.Len(t, b.SuspensionPeriods, 1)
	assert.Less(t, b.AccruedDays.InexactFloat64(), 15.0)

	rec = s.do(t, http.MethodDelete, path+"/suspensions/"+b.SuspensionPeriods[0].ID, &hr, ReasonRequest{Reason: "registered by mistake"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 15.0, decodeBody[BalanceChangeResponse](t, rec).Balance.AccruedDays.InexactFloat64(), 0.01)

	rec = s.do(t, http.MethodPost, path+"/base-change", &hr, BaseChangeRequest{CalculationBase: vacation.Base360, Reason: "commercial year"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, vacation.Base360, decodeBody[BalanceChangeResponse](t, rec).Balance.CalculationBase)

	rec = s.do(t, http.MethodPost, path+"/base-change/revert", &hr, ReasonRequest{Reason: "wrong contract"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, vacation.Base365, decodeBody[BalanceChangeResponse](t, rec).Balance.CalculationBase)

	rec = s.do(t, http.MethodPost, path+"/base-change", &employee, BaseChangeRequest{CalculationBase: vacation.Base360, Reason: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlers_HistoricalRecords(t *testing.T) {
	s := newTestServer(t)
	s.openBalance(t)

	rec := s.do(t, http.MethodPost, "/api/companies/co-1/historical", &hr, map[string]any{
		"employee_id":   "emp-1",
		"service_start": "2023-01-01",
		"service_end":   "2023-12-31",
		"days_enjoyed":  "3",
		"type":          "enjoyed",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[HistoricalResponse](t, rec)
	assert.Equal(t, "3", resp.Balance.HistoricalEnjoyedDays.String())
	assert.InDelta(t, 12.0, resp.Balance.AvailableDays.InexactFloat64(), 0.01)

	verify := "/api/companies/co-1/historical/" + resp.Record.ID + "/verify"
	rec = s.do(t, http.MethodPost, verify, &hr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[HistoricalResponse](t, rec).Record.IsVerified)

	rec = s.do(t, http.MethodPost, verify, &hr, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/companies/co-1/balances/emp-1/historical", &employee, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]vacation.HistoricalRecord](t, rec), 1)
}

func TestHandlers_CompanyJobs(t *testing.T) {
	// GIVEN: An opened balance and a day passing
	// WHEN: HR triggers the accrual sweep and the audit
	// THEN: The sweep updates the balance and the audit passes and is retrievable

	s := newTestServer(t)
	s.openBalance(t)
	s.clock.Advance(1)

	rec := s.do(t, http.MethodPost, "/api/companies/co-1/accrual/run", &employee, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/companies/co-1/accrual/run", &hr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sweep := decodeBody[vacation.AccrualSweepResult](t, rec)
	assert.Equal(t, 1, sweep.Processed)
	assert.Equal(t, 1, sweep.Updated)

	rec = s.do(t, http.MethodGet, "/api/companies/co-1/audit/reports/latest", &hr, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/companies/co-1/audit/run", &hr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody[audit.Report](t, rec)
	assert.Equal(t, audit.StatusPassed, report.Status)

	rec = s.do(t, http.MethodGet, "/api/companies/co-1/audit/reports/latest", &hr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ID, decodeBody[audit.Report](t, rec).ID)
}

func TestHandlers_StatelessProjection(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/accrual/projection", nil, map[string]any{
		"hire_date":        "2024-01-01",
		"as_of":            "2025-01-01",
		"calculation_base": 365,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[vacation.AccrualResult](t, rec)
	assert.Equal(t, "15", res.AccruedDays.String())
	assert.Equal(t, 366, res.DaysWorked)

	rec = s.do(t, http.MethodPost, "/api/accrual/projection", nil, map[string]any{
		"hire_date": "2024-01-01", "as_of": "2023-01-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", generic.NotFound("balance", "x"), http.StatusNotFound},
		{"forbidden", generic.NewBusinessRuleError(generic.ErrForbidden, "no"), http.StatusForbidden},
		{"stale version", generic.ErrConcurrentModification, http.StatusConflict},
		{"illegal transition", &generic.IllegalTransitionError{From: "enjoyed", Action: "cancel"}, http.StatusConflict},
		{"insufficient", &generic.InsufficientBalanceError{}, http.StatusUnprocessableEntity},
		{"active base change", generic.NewBusinessRuleError(generic.ErrBaseChangeActive, "revert first"), http.StatusUnprocessableEntity},
		{"validation", generic.NewValidationError(generic.ErrInvalidInput, "f", "bad"), http.StatusBadRequest},
		{"integrity", &generic.DataIntegrityError{Rule: generic.ErrNegativeBalance}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
