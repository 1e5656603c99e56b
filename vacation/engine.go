/*
engine.go - Vacation engine: entry point for every operation

PURPOSE:
  Engine is the only writer of balances, requests and the audit trail.
  Every mutation follows the same path:

    lock(company/employee) -> store tx -> load balance -> re-validate
      -> Balance.Apply -> save (version check) -> append audit entry -> commit

  Preconditions are always re-checked inside the transaction, against the
  freshly loaded state, never against what the caller saw earlier.

KEY COMPONENTS:
  engine.go       construction, balance onboarding, accrual queries
  requests.go     request lifecycle (create, decisions, schedule, enjoy, cancel)
  adjustments.go  suspensions, calculation base and hire date changes
  historical.go   pre-onboarding consumption records
  sweep.go        daily accrual recompute for a company

SEE ALSO:
  - balance.go: the invariant enforcer
  - statemachine.go: the transition table
*/
package vacation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/lock"
)

const tracerName = "github.com/warp/vacation-engine/vacation"

// Engine orchestrates accrual, approvals and ledgers over a TxStore.
type Engine struct {
	store   TxStore
	calc    *Calculator
	clock   generic.Clock
	locker  Locker
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

type Option func(e *Engine)

func WithClock(clock generic.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithLocker(l Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// NewEngine constructs an Engine. Defaults: wall clock, in-process locker,
// slog.Default, global tracer, no metrics.
func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = generic.SystemClock{}
	}
	if e.locker == nil {
		e.locker = lock.NewMemory()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.calc = NewCalculator(e.clock)
	return e
}

// Calculator exposes the engine's accrual calculator (same clock).
func (e *Engine) Calculator() *Calculator { return e.calc }

// Today is the engine clock's current day.
func (e *Engine) Today() generic.TimePoint { return generic.Today(e.clock) }

// =============================================================================
// PLUMBING
// =============================================================================

// begin opens a span for an operation; the returned func closes it and
// records the outcome.
func (e *Engine) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := e.tracer.Start(ctx, "vacation."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.metrics.observeOperation(op, err)
	}
}

// mutate runs fn on the balance under the per-key lock inside a store
// transaction, then saves it against the version it was loaded at.
func (e *Engine) mutate(ctx context.Context, companyID, employeeID string, fn func(tx Store, b *Balance) error) (*Balance, error) {
	unlock, err := e.locker.Lock(ctx, BalanceKey(companyID, employeeID))
	if err != nil {
		return nil, fmt.Errorf("lock balance %s/%s: %w", companyID, employeeID, err)
	}
	defer unlock()

	var out *Balance
	err = e.store.WithTx(ctx, func(tx Store) error {
		state, err := tx.GetBalance(ctx, companyID, employeeID)
		if err != nil {
			return err
		}
		b, err := BalanceFromState(state)
		if err != nil {
			return err
		}
		if err := fn(tx, b); err != nil {
			return err
		}
		b.UpdatedAt = e.clock.Now().UTC()
		if err := tx.SaveBalance(ctx, b.State(), state.Version); err != nil {
			return err
		}
		b.Version = state.Version + 1
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// accrueToday recomputes accrual for the balance as of today. A hire date in
// the future accrues nothing yet, but the options are still validated.
func (e *Engine) accrueToday(b *Balance, opts AccrualOptions) (AccrualResult, error) {
	if err := opts.Validate(); err != nil {
		return AccrualResult{}, err
	}
	today := e.Today()
	if today.Before(b.HireDate) {
		return AccrualResult{HireDate: b.HireDate, AsOf: today, Base: opts.Base,
			AccruedDays: decimal.Zero, YearsOfService: decimal.Zero}, nil
	}
	return e.calc.Accrue(b.HireDate, today, opts)
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

func authorizeTenant(actor Actor, companyID string) error {
	if companyID == "" {
		return generic.NewValidationError(generic.ErrInvalidInput, "company_id", "required")
	}
	if actor.CompanyID != companyID {
		return generic.NewBusinessRuleError(generic.ErrForbidden,
			"actor %s belongs to another company", actor.UserID)
	}
	return nil
}

func requirePrivileged(actor Actor, what string) error {
	if !actor.privileged() {
		return generic.NewBusinessRuleError(generic.ErrForbidden,
			"%s requires hr or admin role, actor %s has %q", what, actor.UserID, actor.Role)
	}
	return nil
}

func requireReason(field, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return generic.NewValidationError(generic.ErrReasonRequired, field, "must not be empty")
	}
	return nil
}

// =============================================================================
// BALANCES
// =============================================================================

// OpenBalanceInput onboards an employee.
type OpenBalanceInput struct {
	EmployeeID     string
	LeaderID       string
	HireDate       generic.TimePoint
	Base           CalculationBase
	WorkTimeFactor decimal.Decimal
}

// OpenBalance creates the employee's balance and accrues it up to today.
func (e *Engine) OpenBalance(ctx context.Context, actor Actor, in OpenBalanceInput) (b *Balance, err error) {
	ctx, end := e.begin(ctx, "OpenBalance",
		attribute.String("company_id", actor.CompanyID), attribute.String("employee_id", in.EmployeeID))
	defer func() { end(err) }()

	if err := requirePrivileged(actor, "opening a balance"); err != nil {
		return nil, err
	}
	if in.EmployeeID == "" {
		return nil, generic.NewValidationError(generic.ErrInvalidInput, "employee_id", "required")
	}
	if in.HireDate.IsZero() {
		return nil, generic.NewValidationError(generic.ErrInvalidInput, "hire_date", "required")
	}
	if in.Base == 0 {
		in.Base = Base365
	}
	if in.WorkTimeFactor.IsZero() {
		in.WorkTimeFactor = decimal.NewFromInt(1)
	}

	now := e.clock.Now().UTC()
	b = NewBalance(BalanceProfile{
		CompanyID:       actor.CompanyID,
		EmployeeID:      in.EmployeeID,
		LeaderID:        in.LeaderID,
		HireDate:        in.HireDate,
		CalculationBase: in.Base,
		WorkTimeFactor:  in.WorkTimeFactor,
		LastAccrualDate: e.Today(),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	res, err := e.accrueToday(b, b.AccrualOptions())
	if err != nil {
		return nil, err
	}
	if err := b.SetAccrued(res.AccruedDays); err != nil {
		return nil, err
	}

	unlock, err := e.locker.Lock(ctx, b.Key())
	if err != nil {
		return nil, fmt.Errorf("lock balance %s: %w", b.Key(), err)
	}
	defer unlock()

	err = e.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateBalance(ctx, b.State()); err != nil {
			return err
		}
		entry := newEntry(e.clock, actor, b.CompanyID, b.EmployeeID, ActionOpenBalance)
		entry.NewState = b.snapshot()
		entry.Quantity = b.AccruedDays()
		return appendAudit(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "balance opened",
		"company_id", b.CompanyID, "employee_id", b.EmployeeID,
		"accrued_days", b.AccruedDays().String())
	return b, nil
}

// GetBalance returns a balance. Employees may only read their own.
func (e *Engine) GetBalance(ctx context.Context, actor Actor, companyID, employeeID string) (*Balance, error) {
	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, err
	}
	if actor.Role == RoleEmployee && actor.UserID != employeeID {
		return nil, generic.NewBusinessRuleError(generic.ErrForbidden, "employees can only read their own balance")
	}
	state, err := e.store.GetBalance(ctx, companyID, employeeID)
	if err != nil {
		return nil, err
	}
	return BalanceFromState(state)
}

// CalculateAccrual computes the employee's accrual up to asOf (not after today).
func (e *Engine) CalculateAccrual(ctx context.Context, actor Actor, companyID, employeeID string, asOf generic.TimePoint) (AccrualResult, error) {
	b, err := e.GetBalance(ctx, actor, companyID, employeeID)
	if err != nil {
		return AccrualResult{}, err
	}
	return e.calc.Accrue(b.HireDate, asOf, b.AccrualOptions())
}

// ProjectAccrual computes the employee's accrual at any date, future included.
func (e *Engine) ProjectAccrual(ctx context.Context, actor Actor, companyID, employeeID string, asOf generic.TimePoint) (AccrualResult, error) {
	b, err := e.GetBalance(ctx, actor, companyID, employeeID)
	if err != nil {
		return AccrualResult{}, err
	}
	return e.calc.Project(b.HireDate, asOf, b.AccrualOptions())
}

// ListAudit returns the company's audit trail (HR and admin only).
func (e *Engine) ListAudit(ctx context.Context, actor Actor, companyID, employeeID string) ([]AuditLogEntry, error) {
	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, err
	}
	if err := requirePrivileged(actor, "reading the audit trail"); err != nil {
		return nil, err
	}
	if employeeID != "" {
		return e.store.ListAuditByEmployee(ctx, companyID, employeeID)
	}
	return e.store.ListAudit(ctx, companyID)
}

func isIntegrity(err error) bool { return errors.Is(err, generic.ErrDataIntegrity) }
