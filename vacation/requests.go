package vacation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// CREATE
// =============================================================================

// CreateRequestInput is a new vacation request.
type CreateRequestInput struct {
	EmployeeID    string
	RequestedDays decimal.Decimal
	StartDate     generic.TimePoint
	EndDate       generic.TimePoint
}

// CreateRequest files a request in status requested. No days are reserved
// yet; the balance is only checked.
func (e *Engine) CreateRequest(ctx context.Context, actor Actor, companyID string, in CreateRequestInput) (req *Request, err error) {
	ctx, end := e.begin(ctx, "CreateRequest",
		attribute.String("company_id", companyID), attribute.String("employee_id", in.EmployeeID))
	defer func() { end(err) }()

	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, err
	}
	if actor.UserID != in.EmployeeID && !actor.privileged() {
		return nil, generic.NewBusinessRuleError(generic.ErrForbidden,
			"actor %s cannot request vacation for %s", actor.UserID, in.EmployeeID)
	}
	if err := validateRange(in.RequestedDays, in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	_, err = e.mutate(ctx, companyID, in.EmployeeID, func(tx Store, b *Balance) error {
		if err := b.EnsureAvailable(in.RequestedDays); err != nil {
			return err
		}
		existing, err := tx.ListRequestsByEmployee(ctx, companyID, in.EmployeeID)
		if err != nil {
			return err
		}
		period := generic.Period{Start: in.StartDate, End: in.EndDate}
		if other := findOverlap(existing, period, ""); other != nil {
			return generic.NewBusinessRuleError(generic.ErrOverlappingRequest,
				"%s overlaps request %s (%s)", period, other.ID, other.Status)
		}

		now := e.clock.Now().UTC()
		r := Request{
			ID:            uuid.NewString(),
			CompanyID:     companyID,
			EmployeeID:    in.EmployeeID,
			RequestedDays: in.RequestedDays,
			StartDate:     in.StartDate,
			EndDate:       in.EndDate,
			Status:        StatusRequested,
			LeaderID:      b.LeaderID,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.CreateRequest(ctx, r); err != nil {
			return err
		}

		entry := newEntry(e.clock, actor, companyID, in.EmployeeID, ActionCreate)
		entry.RequestID = r.ID
		entry.NewState = map[string]any{"request": r.snapshot(), "balance": b.snapshot()}
		entry.Quantity = r.RequestedDays
		if err := appendAudit(ctx, tx, entry); err != nil {
			return err
		}
		req = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "vacation requested",
		"company_id", companyID, "employee_id", in.EmployeeID,
		"request_id", req.ID, "days", req.RequestedDays.String())
	return req, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// transition loads the request and its balance under lock, checks the table,
// lets apply validate and mutate, then saves both and logs the entry.
func (e *Engine) transition(ctx context.Context, actor Actor, companyID, requestID string, action Action,
	apply func(tx Store, b *Balance, r *Request) error) (*Request, *Balance, error) {

	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, nil, err
	}
	located, err := e.store.GetRequest(ctx, companyID, requestID)
	if err != nil {
		return nil, nil, err
	}

	var out Request
	b, err := e.mutate(ctx, companyID, located.EmployeeID, func(tx Store, b *Balance) error {
		r, err := tx.GetRequest(ctx, companyID, requestID)
		if err != nil {
			return err
		}
		next, err := Next(r.Status, action)
		if err != nil {
			return err
		}
		prevRequest, prevBalance := r.snapshot(), b.snapshot()

		if err := apply(tx, b, &r); err != nil {
			return err
		}
		r.Status = next
		r.UpdatedAt = e.clock.Now().UTC()
		if err := tx.SaveRequest(ctx, r, r.Version); err != nil {
			return err
		}
		r.Version++

		entry := newEntry(e.clock, actor, companyID, r.EmployeeID, action.auditAction())
		entry.RequestID = r.ID
		entry.PreviousState = map[string]any{"request": prevRequest, "balance": prevBalance}
		entry.NewState = map[string]any{"request": r.snapshot(), "balance": b.snapshot()}
		entry.Quantity = r.RequestedDays
		if err := appendAudit(ctx, tx, entry); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		if isIntegrity(err) {
			e.logger.ErrorContext(ctx, "integrity violation on request transition",
				"company_id", companyID, "request_id", requestID, "action", string(action), "error", err)
		}
		return nil, nil, err
	}
	e.logger.InfoContext(ctx, "request transitioned",
		"company_id", companyID, "employee_id", out.EmployeeID,
		"request_id", out.ID, "action", string(action), "status", string(out.Status))
	return &out, b, nil
}

// LeaderDecision approves or rejects a request in status requested. Only the
// request's leader (or HR/admin) decides; a rejection needs a reason.
func (e *Engine) LeaderDecision(ctx context.Context, actor Actor, companyID, requestID string, approve bool, comments string) (r *Request, b *Balance, err error) {
	action := TransitionLeaderReject
	if approve {
		action = TransitionLeaderApprove
	}
	ctx, end := e.begin(ctx, "LeaderDecision",
		attribute.String("company_id", companyID), attribute.String("request_id", requestID), attribute.Bool("approve", approve))
	defer func() { end(err) }()

	if !approve {
		if err := requireReason("rejection_reason", comments); err != nil {
			return nil, nil, err
		}
	}
	return e.transition(ctx, actor, companyID, requestID, action, func(_ Store, b *Balance, r *Request) error {
		if actor.UserID != r.LeaderID && !actor.privileged() {
			return generic.NewBusinessRuleError(generic.ErrForbidden,
				"actor %s is not the leader of request %s", actor.UserID, r.ID)
		}
		now := e.clock.Now().UTC()
		r.LeaderComments = comments
		if !approve {
			r.RejectionReason = comments
			r.RejectedBy = actor.UserID
			return nil
		}
		if err := b.EnsureAvailable(r.RequestedDays); err != nil {
			return err
		}
		r.LeaderApprovalDate = &now
		return nil
	})
}

// HRDecision approves or rejects a leader-approved request. Approval
// re-validates the balance and reserves the requested days.
func (e *Engine) HRDecision(ctx context.Context, actor Actor, companyID, requestID string, approve bool, comments string) (r *Request, b *Balance, err error) {
	action := TransitionHRReject
	if approve {
		action = TransitionHRApprove
	}
	ctx, end := e.begin(ctx, "HRDecision",
		attribute.String("company_id", companyID), attribute.String("request_id", requestID), attribute.Bool("approve", approve))
	defer func() { end(err) }()

	if err := requirePrivileged(actor, "hr decision"); err != nil {
		return nil, nil, err
	}
	if !approve {
		if err := requireReason("rejection_reason", comments); err != nil {
			return nil, nil, err
		}
	}
	return e.transition(ctx, actor, companyID, requestID, action, func(_ Store, b *Balance, r *Request) error {
		now := e.clock.Now().UTC()
		r.HRApproverID = actor.UserID
		r.HRComments = comments
		if !approve {
			r.RejectionReason = comments
			r.RejectedBy = actor.UserID
			return nil
		}
		if err := b.EnsureAvailable(r.RequestedDays); err != nil {
			return err
		}
		if err := b.Reserve(r.RequestedDays); err != nil {
			return err
		}
		r.HRApprovalDate = &now
		return nil
	})
}

// ScheduleRequest fixes (or moves) the dates of an approved request. The
// number of days does not change and nothing is reserved or released.
func (e *Engine) ScheduleRequest(ctx context.Context, actor Actor, companyID, requestID string, start, endDate generic.TimePoint) (r *Request, b *Balance, err error) {
	ctx, end := e.begin(ctx, "ScheduleRequest",
		attribute.String("company_id", companyID), attribute.String("request_id", requestID))
	defer func() { end(err) }()

	return e.transition(ctx, actor, companyID, requestID, TransitionSchedule, func(tx Store, _ *Balance, r *Request) error {
		if actor.UserID != r.EmployeeID && !actor.privileged() {
			return generic.NewBusinessRuleError(generic.ErrForbidden,
				"actor %s cannot schedule request %s", actor.UserID, r.ID)
		}
		if err := validateRange(r.RequestedDays, start, endDate); err != nil {
			return err
		}
		existing, err := tx.ListRequestsByEmployee(ctx, companyID, r.EmployeeID)
		if err != nil {
			return err
		}
		period := generic.Period{Start: start, End: endDate}
		if other := findOverlap(existing, period, r.ID); other != nil {
			return generic.NewBusinessRuleError(generic.ErrOverlappingRequest,
				"%s overlaps request %s (%s)", period, other.ID, other.Status)
		}
		now := e.clock.Now().UTC()
		r.StartDate, r.EndDate = start, endDate
		r.ScheduledAt = &now
		return nil
	})
}

// MarkEnjoyed records that a scheduled vacation has started: the reserved
// days become enjoyed days. Available days stay the same.
func (e *Engine) MarkEnjoyed(ctx context.Context, actor Actor, companyID, requestID string) (r *Request, b *Balance, err error) {
	ctx, end := e.begin(ctx, "MarkEnjoyed",
		attribute.String("company_id", companyID), attribute.String("request_id", requestID))
	defer func() { end(err) }()

	if !actor.privileged() && actor.Role != RoleSystem {
		return nil, nil, generic.NewBusinessRuleError(generic.ErrForbidden,
			"marking enjoyment requires hr, admin or system role")
	}
	return e.transition(ctx, actor, companyID, requestID, TransitionEnjoy, func(_ Store, b *Balance, r *Request) error {
		today := e.Today()
		if today.Before(r.StartDate) {
			return generic.NewBusinessRuleError(generic.ErrNotYetStarted,
				"request %s starts %s, today is %s", r.ID, r.StartDate, today)
		}
		if err := b.Consume(r.RequestedDays); err != nil {
			return err
		}
		now := e.clock.Now().UTC()
		r.EnjoyedDate = &now
		return nil
	})
}

// CancelRequest cancels a non-terminal request. The owner or an admin may
// cancel; reserved days are released.
func (e *Engine) CancelRequest(ctx context.Context, actor Actor, companyID, requestID, reason string) (r *Request, b *Balance, err error) {
	ctx, end := e.begin(ctx, "CancelRequest",
		attribute.String("company_id", companyID), attribute.String("request_id", requestID))
	defer func() { end(err) }()

	return e.transition(ctx, actor, companyID, requestID, TransitionCancel, func(_ Store, b *Balance, r *Request) error {
		if actor.UserID != r.EmployeeID && actor.Role != RoleAdmin {
			return generic.NewBusinessRuleError(generic.ErrForbidden,
				"only the employee or an admin can cancel request %s", r.ID)
		}
		if r.Status.Reserving() {
			if err := b.Release(r.RequestedDays); err != nil {
				return err
			}
		}
		now := e.clock.Now().UTC()
		r.CancelledBy = actor.UserID
		r.CancellationReason = reason
		r.CancelledAt = &now
		return nil
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// GetRequest returns one request.
func (e *Engine) GetRequest(ctx context.Context, actor Actor, companyID, requestID string) (*Request, error) {
	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, err
	}
	r, err := e.store.GetRequest(ctx, companyID, requestID)
	if err != nil {
		return nil, err
	}
	if actor.Role == RoleEmployee && actor.UserID != r.EmployeeID {
		return nil, generic.NewBusinessRuleError(generic.ErrForbidden, "request %s belongs to another employee", requestID)
	}
	return &r, nil
}

// ListRequests returns the employee's requests, oldest first.
func (e *Engine) ListRequests(ctx context.Context, actor Actor, companyID, employeeID string) ([]Request, error) {
	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, err
	}
	if actor.Role == RoleEmployee && actor.UserID != employeeID {
		return nil, generic.NewBusinessRuleError(generic.ErrForbidden,
			"actor %s cannot list requests of %s", actor.UserID, employeeID)
	}
	reqs, err := e.store.ListRequestsByEmployee(ctx, companyID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}
