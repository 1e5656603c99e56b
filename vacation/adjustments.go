/*
adjustments.go - Suspension, calculation base and hire date ledgers

PURPOSE:
  Corrections that change how much an employee has earned. Each one edits
  the balance's embedded history and then recomputes accruedDays from the
  hire date with the new inputs. Nothing is patched incrementally.

BASE CHANGES:
  adjustment = accrual(new base, hire -> today) - accrual(old base, hire -> today)

  The record keeps both numbers so that
  accrued(new) == accruedAtChange + adjustmentApplied. A base can only move
  to a different base, and RevertBaseChange (reason required) is the only
  way to undo the latest change.

SEE ALSO:
  - accrual.go: the recompute
  - balance.go: SetAccrued goes through the enforcer
*/
package vacation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/warp/vacation-engine/generic"
)

// recompute sets accruedDays from scratch and stamps lastAccrualDate.
func (e *Engine) recompute(b *Balance) (before, after decimal.Decimal, err error) {
	before = b.AccruedDays()
	res, err := e.accrueToday(b, b.AccrualOptions())
	if err != nil {
		return before, before, err
	}
	if err := b.SetAccrued(res.AccruedDays); err != nil {
		return before, before, err
	}
	b.LastAccrualDate = e.Today()
	return before, res.AccruedDays, nil
}

// adjust is the shared shape of ledger operations: privileged actor, reason,
// mutate, one trail entry.
func (e *Engine) adjust(ctx context.Context, actor Actor, companyID, employeeID string, action AuditAction,
	apply func(b *Balance) error) (*Balance, error) {

	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, err
	}
	if err := requirePrivileged(actor, string(action)); err != nil {
		return nil, err
	}
	return e.mutate(ctx, companyID, employeeID, func(tx Store, b *Balance) error {
		prev := b.snapshot()
		if err := apply(b); err != nil {
			return err
		}
		entry := newEntry(e.clock, actor, companyID, employeeID, action)
		entry.PreviousState = prev
		entry.NewState = b.snapshot()
		entry.Quantity = b.AccruedDays().Sub(decimalFromSnapshot(prev, "accrued_days"))
		return appendAudit(ctx, tx, entry)
	})
}

func decimalFromSnapshot(s map[string]any, key string) decimal.Decimal {
	raw, _ := s[key].(string)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// SUSPENSIONS
// =============================================================================

// RegisterSuspension adds a period without accrual and recomputes.
func (e *Engine) RegisterSuspension(ctx context.Context, actor Actor, companyID, employeeID string,
	start, endDate generic.TimePoint, reason string) (b *Balance, s *SuspensionPeriod, err error) {

	ctx, end := e.begin(ctx, "RegisterSuspension",
		attribute.String("company_id", companyID), attribute.String("employee_id", employeeID))
	defer func() { end(err) }()

	period, err := generic.NewPeriod(start, endDate)
	if err != nil {
		return nil, nil, err
	}
	if err := requireReason("reason", reason); err != nil {
		return nil, nil, err
	}

	b, err = e.adjust(ctx, actor, companyID, employeeID, ActionRegisterSuspension, func(b *Balance) error {
		if period.Start.Before(b.HireDate) {
			return generic.NewValidationError(generic.ErrInvalidDateOrder, "start_date",
				"suspension starts before the hire date")
		}
		for _, existing := range b.SuspensionPeriods {
			if existing.Period().Overlaps(period) {
				return generic.NewBusinessRuleError(generic.ErrOverlappingSuspension,
					"%s overlaps suspension %s", period, existing.ID)
			}
		}
		sp := SuspensionPeriod{
			ID:        uuid.NewString(),
			StartDate: period.Start,
			EndDate:   period.End,
			Reason:    reason,
			DaysCount: period.DayCount(),
			CreatedBy: actor.UserID,
			CreatedAt: e.clock.Now().UTC(),
		}
		b.SuspensionPeriods = append(b.SuspensionPeriods, sp)
		if _, _, err := e.recompute(b); err != nil {
			return err
		}
		s = &sp
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	e.logger.InfoContext(ctx, "suspension registered",
		"company_id", companyID, "employee_id", employeeID,
		"days", s.DaysCount, "accrued_days", b.AccruedDays().String())
	return b, s, nil
}

// RemoveSuspension deletes a suspension from the balance and recomputes.
func (e *Engine) RemoveSuspension(ctx context.Context, actor Actor, companyID, employeeID, suspensionID, reason string) (b *Balance, err error) {
	ctx, end := e.begin(ctx, "RemoveSuspension",
		attribute.String("company_id", companyID), attribute.String("employee_id", employeeID))
	defer func() { end(err) }()

	if err := requireReason("reason", reason); err != nil {
		return nil, err
	}
	return e.adjust(ctx, actor, companyID, employeeID, ActionRemoveSuspension, func(b *Balance) error {
		kept := b.SuspensionPeriods[:0:0]
		found := false
		for _, s := range b.SuspensionPeriods {
			if s.ID == suspensionID {
				found = true
				continue
			}
			kept = append(kept, s)
		}
		if !found {
			return generic.NotFound("suspension", suspensionID)
		}
		b.SuspensionPeriods = kept
		_, _, err := e.recompute(b)
		return err
	})
}

// =============================================================================
// CALCULATION BASE
// =============================================================================

// ChangeCalculationBase switches the balance between base 360 and 365 and
// applies the one-time adjustment. Going back to the previous base is only
// possible through RevertBaseChange.
func (e *Engine) ChangeCalculationBase(ctx context.Context, actor Actor, companyID, employeeID string,
	newBase CalculationBase, reason string) (b *Balance, rec *BaseChangeRecord, err error) {

	ctx, end := e.begin(ctx, "ChangeCalculationBase",
		attribute.String("company_id", companyID), attribute.String("employee_id", employeeID),
		attribute.Int("new_base", int(newBase)))
	defer func() { end(err) }()

	if !newBase.Valid() {
		return nil, nil, generic.NewValidationError(generic.ErrInvalidInput, "calculation_base", "must be 360 or 365")
	}
	if err := requireReason("reason", reason); err != nil {
		return nil, nil, err
	}

	b, err = e.adjust(ctx, actor, companyID, employeeID, ActionChangeBase, func(b *Balance) error {
		if b.CalculationBase == newBase {
			return generic.NewBusinessRuleError(generic.ErrBaseUnchanged, "balance already uses %s", newBase)
		}
		if idx := lastRevertible(b.BaseChangeHistory, b.CalculationBase); idx >= 0 {
			return generic.NewBusinessRuleError(generic.ErrBaseChangeActive,
				"base change %s to %s is still active, revert it instead", b.BaseChangeHistory[idx].FromBase, b.CalculationBase)
		}
		r, err := e.switchBase(b, newBase, actor, reason, false)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	e.logger.InfoContext(ctx, "calculation base changed",
		"company_id", companyID, "employee_id", employeeID,
		"from", int(rec.FromBase), "to", int(rec.ToBase), "adjustment", rec.AdjustmentApplied.String())
	return b, rec, nil
}

// RevertBaseChange undoes the most recent base change that has not been
// reverted yet.
func (e *Engine) RevertBaseChange(ctx context.Context, actor Actor, companyID, employeeID, reason string) (b *Balance, rec *BaseChangeRecord, err error) {
	ctx, end := e.begin(ctx, "RevertBaseChange",
		attribute.String("company_id", companyID), attribute.String("employee_id", employeeID))
	defer func() { end(err) }()

	if err := requireReason("reason", reason); err != nil {
		return nil, nil, err
	}
	b, err = e.adjust(ctx, actor, companyID, employeeID, ActionRevertBaseChange, func(b *Balance) error {
		idx := lastRevertible(b.BaseChangeHistory, b.CalculationBase)
		if idx < 0 {
			return generic.NewBusinessRuleError(generic.ErrNothingToRevert,
				"employee %s has no active base change", employeeID)
		}
		target := b.BaseChangeHistory[idx].FromBase
		b.BaseChangeHistory[idx].Reverted = true
		r, err := e.switchBase(b, target, actor, reason, true)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return b, rec, nil
}

// lastRevertible finds the latest non-reversal, non-reverted change that led
// to the current base.
func lastRevertible(history []BaseChangeRecord, current CalculationBase) int {
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Reversal || h.Reverted {
			continue
		}
		if h.ToBase != current {
			return -1
		}
		return i
	}
	return -1
}

func (e *Engine) switchBase(b *Balance, to CalculationBase, actor Actor, reason string, reversal bool) (*BaseChangeRecord, error) {
	oldOpts := b.AccrualOptions()
	oldRes, err := e.accrueToday(b, oldOpts)
	if err != nil {
		return nil, err
	}
	newOpts := oldOpts
	newOpts.Base = to
	newRes, err := e.accrueToday(b, newOpts)
	if err != nil {
		return nil, err
	}

	rec := BaseChangeRecord{
		ID:                uuid.NewString(),
		FromBase:          b.CalculationBase,
		ToBase:            to,
		ChangeDate:        e.Today(),
		AccruedAtChange:   oldRes.AccruedDays,
		AdjustmentApplied: newRes.AccruedDays.Sub(oldRes.AccruedDays),
		Reason:            reason,
		PerformedBy:       actor.UserID,
		Reversal:          reversal,
		CreatedAt:         e.clock.Now().UTC(),
	}
	if err := b.SetAccrued(newRes.AccruedDays); err != nil {
		return nil, err
	}
	b.CalculationBase = to
	b.LastAccrualDate = e.Today()
	b.BaseChangeHistory = append(b.BaseChangeHistory, rec)
	return &rec, nil
}

// =============================================================================
// HIRE DATE
// =============================================================================

// ChangeHireDate corrects the hire date and recomputes accrual.
func (e *Engine) ChangeHireDate(ctx context.Context, actor Actor, companyID, employeeID string,
	newHireDate generic.TimePoint, reason string) (b *Balance, err error) {

	ctx, end := e.begin(ctx, "ChangeHireDate",
		attribute.String("company_id", companyID), attribute.String("employee_id", employeeID))
	defer func() { end(err) }()

	if newHireDate.IsZero() {
		return nil, generic.NewValidationError(generic.ErrInvalidInput, "hire_date", "required")
	}
	if err := requireReason("reason", reason); err != nil {
		return nil, err
	}
	return e.adjust(ctx, actor, companyID, employeeID, ActionChangeHireDate, func(b *Balance) error {
		if b.HireDate.Equal(newHireDate) {
			return generic.NewValidationError(generic.ErrInvalidInput, "hire_date", "unchanged")
		}
		for _, s := range b.SuspensionPeriods {
			if s.StartDate.Before(newHireDate) {
				return generic.NewValidationError(generic.ErrInvalidDateOrder, "hire_date",
					"a suspension starts before the new hire date")
			}
		}
		previous := b.HireDate
		b.HireDate = newHireDate
		before, after, err := e.recompute(b)
		if err != nil {
			return err
		}
		b.HireDateChangeHistory = append(b.HireDateChangeHistory, HireDateChangeRecord{
			PreviousHireDate: previous,
			NewHireDate:      newHireDate,
			ChangeDate:       e.Today(),
			AccruedBefore:    before,
			AccruedAfter:     after,
			Reason:           reason,
			PerformedBy:      actor.UserID,
		})
		return nil
	})
}
