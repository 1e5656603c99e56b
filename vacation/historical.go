package vacation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/warp/vacation-engine/generic"
)

// HistoricalInput registers vacation consumed before onboarding.
type HistoricalInput struct {
	EmployeeID       string
	ServicePeriod    generic.Period
	DaysEnjoyed      decimal.Decimal
	EnjoyedStartDate generic.TimePoint
	EnjoyedEndDate   generic.TimePoint
	Type             HistoricalType
}

func (in HistoricalInput) validate() error {
	if in.EmployeeID == "" {
		return generic.NewValidationError(generic.ErrInvalidInput, "employee_id", "required")
	}
	if err := in.ServicePeriod.Validate(); err != nil {
		return err
	}
	if !in.DaysEnjoyed.IsPositive() {
		return generic.NewValidationError(generic.ErrInvalidInput, "days_enjoyed",
			fmt.Sprintf("must be positive, got %s", in.DaysEnjoyed))
	}
	if !in.Type.Valid() {
		return generic.NewValidationError(generic.ErrInvalidInput, "type",
			fmt.Sprintf("unknown type %q", in.Type))
	}
	if !in.EnjoyedStartDate.IsZero() || !in.EnjoyedEndDate.IsZero() {
		if _, err := generic.NewPeriod(in.EnjoyedStartDate, in.EnjoyedEndDate); err != nil {
			return err
		}
	}
	return nil
}

// RegisterHistorical appends a historical record and charges its days to the
// balance's enjoyed and historicalEnjoyed counters.
func (e *Engine) RegisterHistorical(ctx context.Context, actor Actor, companyID string, in HistoricalInput) (rec *HistoricalRecord, b *Balance, err error) {
	ctx, end := e.begin(ctx, "RegisterHistorical",
		attribute.String("company_id", companyID), attribute.String("employee_id", in.EmployeeID))
	defer func() { end(err) }()

	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, nil, err
	}
	if err := requirePrivileged(actor, "registering historical vacation"); err != nil {
		return nil, nil, err
	}
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	b, err = e.mutate(ctx, companyID, in.EmployeeID, func(tx Store, b *Balance) error {
		if err := b.EnsureAvailable(in.DaysEnjoyed); err != nil {
			return err
		}
		prev := b.snapshot()
		if err := b.RecordHistorical(in.DaysEnjoyed); err != nil {
			return err
		}
		r := HistoricalRecord{
			ID:               uuid.NewString(),
			CompanyID:        companyID,
			EmployeeID:       in.EmployeeID,
			ServicePeriod:    in.ServicePeriod,
			DaysEnjoyed:      in.DaysEnjoyed,
			EnjoyedStartDate: in.EnjoyedStartDate,
			EnjoyedEndDate:   in.EnjoyedEndDate,
			Type:             in.Type,
			RegisteredBy:     actor.UserID,
			CreatedAt:        e.clock.Now().UTC(),
		}
		if err := tx.CreateHistorical(ctx, r); err != nil {
			return err
		}
		entry := newEntry(e.clock, actor, companyID, in.EmployeeID, ActionRegisterHistorical)
		entry.PreviousState = prev
		entry.NewState = b.snapshot()
		entry.Quantity = in.DaysEnjoyed
		if err := appendAudit(ctx, tx, entry); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, b, nil
}

// VerifyHistorical flips a record to verified. There is no way back.
func (e *Engine) VerifyHistorical(ctx context.Context, actor Actor, companyID, recordID string) (rec *HistoricalRecord, err error) {
	ctx, end := e.begin(ctx, "VerifyHistorical",
		attribute.String("company_id", companyID), attribute.String("record_id", recordID))
	defer func() { end(err) }()

	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, err
	}
	if err := requirePrivileged(actor, "verifying historical vacation"); err != nil {
		return nil, err
	}

	err = e.store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetHistorical(ctx, companyID, recordID)
		if err != nil {
			return err
		}
		if r.IsVerified {
			return generic.NewBusinessRuleError(generic.ErrAlreadyVerified,
				"record %s verified by %s", r.ID, r.VerifiedBy)
		}
		now := e.clock.Now().UTC()
		r.IsVerified = true
		r.VerifiedBy = actor.UserID
		r.VerifiedAt = &now
		if err := tx.MarkHistoricalVerified(ctx, r); err != nil {
			return err
		}
		entry := newEntry(e.clock, actor, companyID, r.EmployeeID, ActionVerifyHistorical)
		entry.NewState = map[string]any{"historical_record_id": r.ID, "is_verified": true}
		entry.Quantity = r.DaysEnjoyed
		if err := appendAudit(ctx, tx, entry); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListHistorical returns the employee's historical records.
func (e *Engine) ListHistorical(ctx context.Context, actor Actor, companyID, employeeID string) ([]HistoricalRecord, error) {
	if err := authorizeTenant(actor, companyID); err != nil {
		return nil, err
	}
	if actor.Role == RoleEmployee && actor.UserID != employeeID {
		return nil, generic.NewBusinessRuleError(generic.ErrForbidden,
			"actor %s cannot read records of %s", actor.UserID, employeeID)
	}
	return e.store.ListHistorical(ctx, companyID, employeeID)
}
