package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/warp/vacation-engine/audit"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

const auditColumns = `id, company_id, employee_id, action, request_id, performed_by,
	previous_state_json, new_state_json, quantity, timestamp`

// AppendAudit appends an entry to the trail. Entries are never updated.
func (s *Store) AppendAudit(ctx context.Context, e vacation.AuditLogEntry) error {
	prev, err := encodeState(e.PreviousState)
	if err != nil {
		return err
	}
	next, err := encodeState(e.NewState)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO audit_log (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CompanyID, e.EmployeeID, string(e.Action), e.RequestID, e.PerformedBy,
		prev, next, e.Quantity, timeValue(e.Timestamp),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("audit entry %s: %w", e.ID, generic.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the trail of a company in insertion order.
func (s *Store) ListAudit(ctx context.Context, companyID string) ([]vacation.AuditLogEntry, error) {
	return s.listAudit(ctx, `SELECT `+auditColumns+` FROM audit_log
		WHERE company_id = ? ORDER BY seq`, companyID)
}

// ListAuditByEmployee returns the trail of one employee in insertion order.
func (s *Store) ListAuditByEmployee(ctx context.Context, companyID, employeeID string) ([]vacation.AuditLogEntry, error) {
	return s.listAudit(ctx, `SELECT `+auditColumns+` FROM audit_log
		WHERE company_id = ? AND employee_id = ? ORDER BY seq`, companyID, employeeID)
}

func (s *Store) listAudit(ctx context.Context, query string, args ...any) ([]vacation.AuditLogEntry, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []vacation.AuditLogEntry
	for rows.Next() {
		var (
			e               vacation.AuditLogEntry
			action, ts      string
			prev, nextState sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.EmployeeID, &action, &e.RequestID, &e.PerformedBy,
			&prev, &nextState, &e.Quantity, &ts); err != nil {
			return nil, err
		}
		e.Action = vacation.AuditAction(action)
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if e.PreviousState, err = decodeState(prev); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", e.ID, err)
		}
		if e.NewState, err = decodeState(nextState); err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeState(state map[string]any) (sql.NullString, error) {
	if state == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode audit state: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeState(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// AUDIT REPORTS
// =============================================================================

// SaveReport stores an audit report.
func (s *Store) SaveReport(ctx context.Context, r audit.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO audit_reports (id, company_id, timestamp, status, report_json)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, timeValue(r.Timestamp), string(r.Status), string(data))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("report %s: %w", r.ID, generic.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// LatestReport returns the most recent report of a company.
func (s *Store) LatestReport(ctx context.Context, companyID string) (audit.Report, error) {
	var data string
	err := s.queryRow(ctx, `SELECT report_json FROM audit_reports
		WHERE company_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, companyID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Report{}, generic.NotFound("audit report", companyID)
	}
	if err != nil {
		return audit.Report{}, fmt.Errorf("failed to load report: %w", err)
	}
	var r audit.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return audit.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
