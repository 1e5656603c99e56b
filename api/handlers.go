/*
handlers.go - HTTP API handlers for the vacation engine

PURPOSE:
  Exposes the vacation and audit engines via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engines.
  Handlers never touch the store directly.

ENDPOINTS (all under /api/companies/{companyID}):
  Balances:
    POST   /balances                                   Open a balance
    GET    /balances/{employeeID}                      Balance
    GET    /balances/{employeeID}/accrual?as_of=       Accrual up to a past date
    GET    /balances/{employeeID}/projection?as_of=    Accrual at any date
    POST   /balances/{employeeID}/suspensions          Register suspension
    DELETE /balances/{employeeID}/suspensions/{id}     Remove suspension
    POST   /balances/{employeeID}/base-change          Switch 360/365 base
    POST   /balances/{employeeID}/base-change/revert   Undo last base change
    POST   /balances/{employeeID}/hire-date            Correct hire date
    GET    /balances/{employeeID}/historical           Historical records
    GET    /balances/{employeeID}/audit-log            Employee audit trail

  Requests:
    POST   /requests                                   File a request
    GET    /requests?employee_id=                      Employee's requests
    GET    /requests/{requestID}                       One request
    POST   /requests/{requestID}/leader-decision       Leader approve/reject
    POST   /requests/{requestID}/hr-decision           HR approve/reject
    POST   /requests/{requestID}/schedule              Fix dates
    POST   /requests/{requestID}/enjoy                 Mark enjoyed
    POST   /requests/{requestID}/cancel                Cancel

  Historical:
    POST   /historical                                 Register record
    POST   /historical/{recordID}/verify               Verify record

  Jobs and audit:
    POST   /accrual/run                                Daily accrual sweep
    POST   /audit/run                                  Integrity audit
    GET    /audit/reports/latest                       Latest audit report
    GET    /audit-log                                  Company audit trail

REQUEST FLOW:
  1. Parse HTTP request (actor from context, path params, JSON body)
  2. Call the engine with the actor
  3. Serialize response
  4. Map errors to status codes (see statusFor)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing actor identity
  - 403: Actor not allowed
  - 404: Resource not found
  - 409: Conflict (stale version, duplicate, overlap, illegal transition)
  - 422: Business rule violation (insufficient balance, ...)
  - 500: Data integrity and internal errors
  - 503: Balance lock not acquired

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/vacation-engine/audit"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/lock"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *vacation.Engine
	Auditor *audit.Engine
	Pinger  HealthChecker
	Logger  *slog.Logger

	// ScenariosEnabled allows loading demo data. Development only.
	ScenariosEnabled bool
}

// NewHandler creates a new handler over the two engines.
func NewHandler(engine *vacation.Engine, auditor *audit.Engine, health HealthChecker) *Handler {
	return &Handler{
		Engine:  engine,
		Auditor: auditor,
		Pinger:  health,
		Logger:  slog.Default(),
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health pings the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// OpenBalance onboards an employee into the company.
func (h *Handler) OpenBalance(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	if actor.CompanyID != companyID {
		h.fail(w, r, generic.NewBusinessRuleError(generic.ErrForbidden, "actor %s belongs to another company", actor.UserID))
		return
	}

	var req OpenBalanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := vacation.OpenBalanceInput{
		EmployeeID: req.EmployeeID,
		LeaderID:   req.LeaderID,
		HireDate:   req.HireDate,
		Base:       req.CalculationBase,
	}
	if req.WorkTimeFactor != nil {
		in.WorkTimeFactor = *req.WorkTimeFactor
	}

	b, err := h.Engine.OpenBalance(r.Context(), actor, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(b))
}

// GetBalance returns an employee balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	b, err := h.Engine.GetBalance(r.Context(), actor, companyID, chi.URLParam(r, "employeeID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// GetAccrual computes accrual up to as_of (default today). Future dates are
// refused.
func (h *Handler) GetAccrual(w http.ResponseWriter, r *http.Request) {
	h.accrual(w, r, h.Engine.CalculateAccrual)
}

// GetProjection computes accrual at as_of, future dates included.
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	h.accrual(w, r, h.Engine.ProjectAccrual)
}

type accrualFunc func(ctx context.Context, actor vacation.Actor, companyID, employeeID string, asOf generic.TimePoint) (vacation.AccrualResult, error)

func (h *Handler) accrual(w http.ResponseWriter, r *http.Request, calc accrualFunc) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	asOf := h.Engine.Today()
	if s := r.URL.Query().Get("as_of"); s != "" {
		parsed, err := generic.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
			return
		}
		asOf = parsed
	}
	res, err := calc(r.Context(), actor, companyID, chi.URLParam(r, "employeeID"), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ProjectAccrual is the stateless calculator: accrual for arbitrary inputs.
func (h *Handler) ProjectAccrual(w http.ResponseWriter, r *http.Request) {
	var req ProjectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.Engine.Calculator().Project(req.HireDate, req.AsOf, req.options())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// RegisterSuspension adds an unpaid leave or sanction.
func (h *Handler) RegisterSuspension(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req SuspensionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, s, err := h.Engine.RegisterSuspension(r.Context(), actor, companyID, chi.URLParam(r, "employeeID"),
		req.StartDate, req.EndDate, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, BalanceChangeResponse{Balance: toBalanceDTO(b), Record: s})
}

// RemoveSuspension deletes a suspension. The body carries the reason.
func (h *Handler) RemoveSuspension(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.Engine.RemoveSuspension(r.Context(), actor, companyID, chi.URLParam(r, "employeeID"),
		chi.URLParam(r, "suspensionID"), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceChangeResponse{Balance: toBalanceDTO(b)})
}

// ChangeBase switches the calculation base.
func (h *Handler) ChangeBase(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req BaseChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, rec, err := h.Engine.ChangeCalculationBase(r.Context(), actor, companyID, chi.URLParam(r, "employeeID"),
		req.CalculationBase, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceChangeResponse{Balance: toBalanceDTO(b), Record: rec})
}

// RevertBaseChange undoes the latest base change.
func (h *Handler) RevertBaseChange(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, rec, err := h.Engine.RevertBaseChange(r.Context(), actor, companyID, chi.URLParam(r, "employeeID"), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceChangeResponse{Balance: toBalanceDTO(b), Record: rec})
}

// ChangeHireDate corrects the hire date.
func (h *Handler) ChangeHireDate(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req HireDateChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.Engine.ChangeHireDate(r.Context(), actor, companyID, chi.URLParam(r, "employeeID"), req.HireDate, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceChangeResponse{Balance: toBalanceDTO(b)})
}

// =============================================================================
// HISTORICAL HANDLERS
// =============================================================================

// RegisterHistorical records vacation consumed before onboarding.
func (h *Handler) RegisterHistorical(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req HistoricalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, b, err := h.Engine.RegisterHistorical(r.Context(), actor, companyID, vacation.HistoricalInput{
		EmployeeID:       req.EmployeeID,
		ServicePeriod:    generic.Period{Start: req.ServiceStart, End: req.ServiceEnd},
		DaysEnjoyed:      req.DaysEnjoyed,
		EnjoyedStartDate: req.EnjoyedStartDate,
		EnjoyedEndDate:   req.EnjoyedEndDate,
		Type:             req.Type,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, HistoricalResponse{Record: rec, Balance: toBalanceDTO(b)})
}

// VerifyHistorical marks a record verified.
func (h *Handler) VerifyHistorical(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	rec, err := h.Engine.VerifyHistorical(r.Context(), actor, companyID, chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoricalResponse{Record: rec})
}

// ListHistorical returns an employee's historical records.
func (h *Handler) ListHistorical(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	recs, err := h.Engine.ListHistorical(r.Context(), actor, companyID, chi.URLParam(r, "employeeID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []vacation.HistoricalRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// CreateRequest files a vacation request.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req CreateVacationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EmployeeID == "" {
		req.EmployeeID = actor.UserID
	}
	created, err := h.Engine.CreateRequest(r.Context(), actor, companyID, vacation.CreateRequestInput{
		EmployeeID:    req.EmployeeID,
		RequestedDays: req.RequestedDays,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TransitionResponse{Request: created})
}

// ListRequests returns the requests of ?employee_id= (default: the caller).
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	employeeID := r.URL.Query().Get("employee_id")
	if employeeID == "" {
		employeeID = actor.UserID
	}
	reqs, err := h.Engine.ListRequests(r.Context(), actor, companyID, employeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []vacation.Request{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// GetRequest returns one request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	req, err := h.Engine.GetRequest(r.Context(), actor, companyID, chi.URLParam(r, "requestID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// LeaderDecision approves or rejects at the leader step.
func (h *Handler) LeaderDecision(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondTransition(w, r)(h.Engine.LeaderDecision(r.Context(), actor, companyID,
		chi.URLParam(r, "requestID"), req.Approve, req.Comments))
}

// HRDecision approves or rejects at the HR step.
func (h *Handler) HRDecision(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondTransition(w, r)(h.Engine.HRDecision(r.Context(), actor, companyID,
		chi.URLParam(r, "requestID"), req.Approve, req.Comments))
}

// ScheduleRequest fixes the final dates.
func (h *Handler) ScheduleRequest(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req ScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respondTransition(w, r)(h.Engine.ScheduleRequest(r.Context(), actor, companyID,
		chi.URLParam(r, "requestID"), req.StartDate, req.EndDate))
}

// MarkEnjoyed records that the vacation started.
func (h *Handler) MarkEnjoyed(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	h.respondTransition(w, r)(h.Engine.MarkEnjoyed(r.Context(), actor, companyID, chi.URLParam(r, "requestID")))
}

// CancelRequest cancels a request. The reason is optional.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	h.respondTransition(w, r)(h.Engine.CancelRequest(r.Context(), actor, companyID,
		chi.URLParam(r, "requestID"), req.Reason))
}

func (h *Handler) respondTransition(w http.ResponseWriter, r *http.Request) func(*vacation.Request, *vacation.Balance, error) {
	return func(req *vacation.Request, b *vacation.Balance, err error) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, TransitionResponse{Request: req, Balance: toBalanceDTO(b)})
	}
}

// =============================================================================
// JOB AND AUDIT HANDLERS
// =============================================================================

// RunAccrual triggers the daily accrual sweep for the company.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.privileged(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.RunDailyAccrual(r.Context(), companyID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RunAudit runs the integrity audit for the company.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.privileged(w, r)
	if !ok {
		return
	}
	report, err := h.Auditor.Run(r.Context(), companyID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// LatestReport returns the most recent audit report.
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.privileged(w, r)
	if !ok {
		return
	}
	report, err := h.Auditor.LatestReport(r.Context(), companyID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListAudit returns the company audit trail.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	h.listAudit(w, r, r.URL.Query().Get("employee_id"))
}

// ListEmployeeAudit returns one employee's audit trail.
func (h *Handler) ListEmployeeAudit(w http.ResponseWriter, r *http.Request) {
	h.listAudit(w, r, chi.URLParam(r, "employeeID"))
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request, employeeID string) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return
	}
	entries, err := h.Engine.ListAudit(r.Context(), actor, companyID, employeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []vacation.AuditLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// =============================================================================
// HELPERS
// =============================================================================

// scope returns the caller and the company of the route.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (vacation.Actor, string, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing actor identity", nil)
		return vacation.Actor{}, "", false
	}
	return actor, chi.URLParam(r, "companyID"), true
}

// privileged is scope for company-wide jobs: same tenant, hr or admin role.
func (h *Handler) privileged(w http.ResponseWriter, r *http.Request) (vacation.Actor, string, bool) {
	actor, companyID, ok := h.scope(w, r)
	if !ok {
		return actor, companyID, false
	}
	if actor.CompanyID != companyID {
		h.fail(w, r, generic.NewBusinessRuleError(generic.ErrForbidden, "actor %s belongs to another company", actor.UserID))
		return actor, companyID, false
	}
	if actor.Role != vacation.RoleHR && actor.Role != vacation.RoleAdmin {
		h.fail(w, r, generic.NewBusinessRuleError(generic.ErrForbidden, "role %q cannot run company jobs", actor.Role))
		return actor, companyID, false
	}
	return actor, companyID, true
}

// fail maps an engine error to a status and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, http.StatusText(status), err)
}

// statusFor maps the error taxonomy onto HTTP. Authorization is checked
// before the other business rules so a forbidden overlap is still a 403.
func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden
	case generic.IsRetryable(err),
		errors.Is(err, generic.ErrAlreadyExists),
		errors.Is(err, generic.ErrOverlappingRequest),
		errors.Is(err, generic.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, lock.ErrNotAcquired):
		return http.StatusServiceUnavailable
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrBusinessRule):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "business_rule"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	return "internal"
}

// decodeJSON decodes the body or writes a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: codeFor(status)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
