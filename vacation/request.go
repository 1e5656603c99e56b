package vacation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
)

// Request is a vacation request. Requests are never deleted; their status
// records how they ended.
type Request struct {
	ID            string            `json:"id"`
	CompanyID     string            `json:"company_id"`
	EmployeeID    string            `json:"employee_id"`
	RequestedDays decimal.Decimal   `json:"requested_days"`
	StartDate     generic.TimePoint `json:"start_date"`
	EndDate       generic.TimePoint `json:"end_date"`
	Status        Status            `json:"status"`

	LeaderID           string     `json:"leader_id"`
	LeaderApprovalDate *time.Time `json:"leader_approval_date,omitempty"`
	LeaderComments     string     `json:"leader_comments,omitempty"`

	HRApproverID   string     `json:"hr_approver_id,omitempty"`
	HRApprovalDate *time.Time `json:"hr_approval_date,omitempty"`
	HRComments     string     `json:"hr_comments,omitempty"`

	RejectionReason string `json:"rejection_reason,omitempty"`
	RejectedBy      string `json:"rejected_by,omitempty"`

	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
	EnjoyedDate        *time.Time `json:"enjoyed_date,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Period is the requested date range.
func (r *Request) Period() generic.Period {
	return generic.Period{Start: r.StartDate, End: r.EndDate}
}

// validateRange checks a date range can carry the requested days.
func validateRange(days decimal.Decimal, start, end generic.TimePoint) error {
	if !days.IsPositive() {
		return generic.NewValidationError(generic.ErrInvalidInput, "requested_days",
			fmt.Sprintf("must be positive, got %s", days))
	}
	period, err := generic.NewPeriod(start, end)
	if err != nil {
		return err
	}
	if days.GreaterThan(decimal.NewFromInt(int64(period.DayCount()))) {
		return generic.NewValidationError(generic.ErrInvalidDates, "requested_days",
			fmt.Sprintf("%s days do not fit in %s", days, period))
	}
	return nil
}

// findOverlap returns the first active request of the same employee whose
// dates overlap the period, ignoring the request with id skip.
func findOverlap(existing []Request, period generic.Period, skip string) *Request {
	for i := range existing {
		r := &existing[i]
		if r.ID == skip || !r.Status.Active() {
			continue
		}
		if r.Period().Overlaps(period) {
			return r
		}
	}
	return nil
}

// snapshot is the PII-free view written to the audit trail.
func (r *Request) snapshot() map[string]any {
	return map[string]any{
		"status":         string(r.Status),
		"requested_days": r.RequestedDays.String(),
		"start_date":     r.StartDate.String(),
		"end_date":       r.EndDate.String(),
	}
}
