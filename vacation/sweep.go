package vacation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/warp/vacation-engine/generic"
)

// EmployeeAccrual is the sweep outcome for one balance.
type EmployeeAccrual struct {
	EmployeeID string          `json:"employee_id"`
	Previous   decimal.Decimal `json:"previous_accrued_days"`
	Accrued    decimal.Decimal `json:"accrued_days"`
	Delta      decimal.Decimal `json:"delta"`
	Error      string          `json:"error,omitempty"`
}

// AccrualSweepResult summarizes one company sweep.
type AccrualSweepResult struct {
	CompanyID string            `json:"company_id"`
	AsOf      generic.TimePoint `json:"as_of"`
	Processed int               `json:"processed"`
	Updated   int               `json:"updated"`
	Failed    int               `json:"failed"`
	Employees []EmployeeAccrual `json:"employees"`
}

// RunDailyAccrual recomputes accruedDays for every balance of the company as
// of today. A failing employee is recorded and the sweep moves on; the
// returned error only covers failing to list balances.
func (e *Engine) RunDailyAccrual(ctx context.Context, companyID string) (res AccrualSweepResult, err error) {
	ctx, end := e.begin(ctx, "RunDailyAccrual", attribute.String("company_id", companyID))
	defer func() { end(err) }()

	started := time.Now()
	defer func() { e.metrics.observeSweep(time.Since(started).Seconds()) }()

	res = AccrualSweepResult{CompanyID: companyID, AsOf: e.Today()}
	balances, err := e.store.ListBalances(ctx, companyID)
	if err != nil {
		return res, fmt.Errorf("list balances for %s: %w", companyID, err)
	}

	actor := SystemActor(companyID)
	for _, state := range balances {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := e.accrueOne(ctx, actor, state.EmployeeID)
		res.Processed++
		switch {
		case out.Error != "":
			res.Failed++
			e.metrics.observeAccrual(OutcomeFailure)
			e.logger.WarnContext(ctx, "accrual failed",
				"company_id", companyID, "employee_id", out.EmployeeID, "error", out.Error)
		case !out.Delta.IsZero():
			res.Updated++
			e.metrics.observeAccrual(OutcomeUpdated)
		default:
			e.metrics.observeAccrual(OutcomeUnchanged)
		}
		res.Employees = append(res.Employees, out)
	}

	e.logger.InfoContext(ctx, "accrual sweep finished",
		"company_id", companyID, "processed", res.Processed, "updated", res.Updated, "failed", res.Failed)
	return res, nil
}

func (e *Engine) accrueOne(ctx context.Context, actor Actor, employeeID string) EmployeeAccrual {
	out := EmployeeAccrual{EmployeeID: employeeID}
	_, err := e.mutate(ctx, actor.CompanyID, employeeID, func(tx Store, b *Balance) error {
		prev := b.snapshot()
		before, after, err := e.recompute(b)
		if err != nil {
			return err
		}
		out.Previous, out.Accrued, out.Delta = before, after, after.Sub(before)
		if out.Delta.IsZero() {
			return nil
		}
		entry := newEntry(e.clock, actor, actor.CompanyID, employeeID, ActionAccrue)
		entry.PreviousState = prev
		entry.NewState = b.snapshot()
		entry.Quantity = out.Delta
		return appendAudit(ctx, tx, entry)
	})
	if err != nil {
		out.Error = err.Error()
		out.Delta = decimal.Zero
	}
	return out
}
