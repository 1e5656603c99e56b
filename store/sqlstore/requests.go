package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

const requestColumns = `id, company_id, employee_id, requested_days, start_date, end_date, status,
	leader_id, leader_approval_date, leader_comments,
	hr_approver_id, hr_approval_date, hr_comments,
	rejection_reason, rejected_by,
	scheduled_at, enjoyed_date, cancelled_by, cancellation_reason, cancelled_at,
	version, created_at, updated_at`

// CreateRequest inserts a new vacation request.
func (s *Store) CreateRequest(ctx context.Context, r vacation.Request) error {
	if r.Version == 0 {
		r.Version = 1
	}
	_, err := s.exec(ctx, `INSERT INTO vacation_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, r.EmployeeID, r.RequestedDays, r.StartDate.String(), r.EndDate.String(), string(r.Status),
		r.LeaderID, timePtrValue(r.LeaderApprovalDate), r.LeaderComments,
		r.HRApproverID, timePtrValue(r.HRApprovalDate), r.HRComments,
		r.RejectionReason, r.RejectedBy,
		timePtrValue(r.ScheduledAt), timePtrValue(r.EnjoyedDate), r.CancelledBy, r.CancellationReason, timePtrValue(r.CancelledAt),
		r.Version, timeValue(r.CreatedAt), timeValue(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("request %s: %w", r.ID, generic.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request of a company.
func (s *Store) GetRequest(ctx context.Context, companyID, requestID string) (vacation.Request, error) {
	row := s.queryRow(ctx, `SELECT `+requestColumns+` FROM vacation_requests
		WHERE id = ? AND company_id = ?`, requestID, companyID)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vacation.Request{}, generic.NotFound("request", requestID)
	}
	return r, err
}

// SaveRequest overwrites a request whose stored version is expectedVersion.
func (s *Store) SaveRequest(ctx context.Context, r vacation.Request, expectedVersion int64) error {
	res, err := s.exec(ctx, `UPDATE vacation_requests SET
			requested_days = ?, start_date = ?, end_date = ?, status = ?,
			leader_id = ?, leader_approval_date = ?, leader_comments = ?,
			hr_approver_id = ?, hr_approval_date = ?, hr_comments = ?,
			rejection_reason = ?, rejected_by = ?,
			scheduled_at = ?, enjoyed_date = ?, cancelled_by = ?, cancellation_reason = ?, cancelled_at = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND company_id = ? AND version = ?`,
		r.RequestedDays, r.StartDate.String(), r.EndDate.String(), string(r.Status),
		r.LeaderID, timePtrValue(r.LeaderApprovalDate), r.LeaderComments,
		r.HRApproverID, timePtrValue(r.HRApprovalDate), r.HRComments,
		r.RejectionReason, r.RejectedBy,
		timePtrValue(r.ScheduledAt), timePtrValue(r.EnjoyedDate), r.CancelledBy, r.CancellationReason, timePtrValue(r.CancelledAt),
		expectedVersion+1, timeValue(r.UpdatedAt),
		r.ID, r.CompanyID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetRequest(ctx, r.CompanyID, r.ID); err != nil {
			return err
		}
		return fmt.Errorf("request %s expected version %d: %w",
			r.ID, expectedVersion, generic.ErrConcurrentModification)
	}
	return nil
}

// ListRequestsByEmployee returns the requests of one employee, oldest first.
func (s *Store) ListRequestsByEmployee(ctx context.Context, companyID, employeeID string) ([]vacation.Request, error) {
	return s.listRequests(ctx, `SELECT `+requestColumns+` FROM vacation_requests
		WHERE company_id = ? AND employee_id = ? ORDER BY created_at, id`, companyID, employeeID)
}

// ListRequests returns every request of a company, oldest first.
func (s *Store) ListRequests(ctx context.Context, companyID string) ([]vacation.Request, error) {
	return s.listRequests(ctx, `SELECT `+requestColumns+` FROM vacation_requests
		WHERE company_id = ? ORDER BY created_at, id`, companyID)
}

func (s *Store) listRequests(ctx context.Context, query string, args ...any) ([]vacation.Request, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []vacation.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row scanner) (vacation.Request, error) {
	var (
		r                                        vacation.Request
		start, end, status, createdAt, updatedAt string
		leaderAt, hrAt, scheduledAt, enjoyedAt   sql.NullString
		cancelledAt                              sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.CompanyID, &r.EmployeeID, &r.RequestedDays, &start, &end, &status,
		&r.LeaderID, &leaderAt, &r.LeaderComments,
		&r.HRApproverID, &hrAt, &r.HRComments,
		&r.RejectionReason, &r.RejectedBy,
		&scheduledAt, &enjoyedAt, &r.CancelledBy, &r.CancellationReason, &cancelledAt,
		&r.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return r, err
	}
	r.Status = vacation.Status(status)
	if r.StartDate, err = generic.ParseDate(start); err != nil {
		return r, err
	}
	if r.EndDate, err = generic.ParseDate(end); err != nil {
		return r, err
	}
	if r.LeaderApprovalDate, err = parseTimePtr(leaderAt); err != nil {
		return r, err
	}
	if r.HRApprovalDate, err = parseTimePtr(hrAt); err != nil {
		return r, err
	}
	if r.ScheduledAt, err = parseTimePtr(scheduledAt); err != nil {
		return r, err
	}
	if r.EnjoyedDate, err = parseTimePtr(enjoyedAt); err != nil {
		return r, err
	}
	if r.CancelledAt, err = parseTimePtr(cancelledAt); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return r, err
	}
	return r, nil
}
