package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

const historicalColumns = `id, company_id, employee_id, service_start, service_end, days_enjoyed,
	enjoyed_start_date, enjoyed_end_date, type, is_verified, verified_by, verified_at,
	registered_by, created_at`

// CreateHistorical inserts a historical record.
func (s *Store) CreateHistorical(ctx context.Context, rec vacation.HistoricalRecord) error {
	_, err := s.exec(ctx, `INSERT INTO historical_records (`+historicalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CompanyID, rec.EmployeeID,
		rec.ServicePeriod.Start.String(), rec.ServicePeriod.End.String(), rec.DaysEnjoyed,
		dateValue(rec.EnjoyedStartDate), dateValue(rec.EnjoyedEndDate), string(rec.Type),
		rec.IsVerified, rec.VerifiedBy, timePtrValue(rec.VerifiedAt),
		rec.RegisteredBy, timeValue(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("historical record %s: %w", rec.ID, generic.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert historical record: %w", err)
	}
	return nil
}

// GetHistorical retrieves a historical record of a company.
func (s *Store) GetHistorical(ctx context.Context, companyID, recordID string) (vacation.HistoricalRecord, error) {
	row := s.queryRow(ctx, `SELECT `+historicalColumns+` FROM historical_records
		WHERE id = ? AND company_id = ?`, recordID, companyID)
	rec, err := scanHistorical(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vacation.HistoricalRecord{}, generic.NotFound("historical record", recordID)
	}
	return rec, err
}

// MarkHistoricalVerified sets the verification flag. Only the verification
// columns are written; the rest of the record is immutable.
func (s *Store) MarkHistoricalVerified(ctx context.Context, rec vacation.HistoricalRecord) error {
	res, err := s.exec(ctx, `UPDATE historical_records
		SET is_verified = ?, verified_by = ?, verified_at = ?
		WHERE id = ? AND company_id = ?`,
		true, rec.VerifiedBy, timePtrValue(rec.VerifiedAt), rec.ID, rec.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to verify historical record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFound("historical record", rec.ID)
	}
	return nil
}

// ListHistorical returns the historical records of one employee, oldest first.
func (s *Store) ListHistorical(ctx context.Context, companyID, employeeID string) ([]vacation.HistoricalRecord, error) {
	rows, err := s.query(ctx, `SELECT `+historicalColumns+` FROM historical_records
		WHERE company_id = ? AND employee_id = ? ORDER BY created_at, id`, companyID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list historical records: %w", err)
	}
	defer rows.Close()

	var out []vacation.HistoricalRecord
	for rows.Next() {
		rec, err := scanHistorical(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanHistorical(row scanner) (vacation.HistoricalRecord, error) {
	var (
		rec                                  vacation.HistoricalRecord
		serviceStart, serviceEnd, typ        string
		createdAt                            string
		enjoyedStart, enjoyedEnd, verifiedAt sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.CompanyID, &rec.EmployeeID, &serviceStart, &serviceEnd, &rec.DaysEnjoyed,
		&enjoyedStart, &enjoyedEnd, &typ, &rec.IsVerified, &rec.VerifiedBy, &verifiedAt,
		&rec.RegisteredBy, &createdAt,
	)
	if err != nil {
		return rec, err
	}
	rec.Type = vacation.HistoricalType(typ)
	if rec.ServicePeriod.Start, err = generic.ParseDate(serviceStart); err != nil {
		return rec, err
	}
	if rec.ServicePeriod.End, err = generic.ParseDate(serviceEnd); err != nil {
		return rec, err
	}
	if rec.EnjoyedStartDate, err = parseDate(enjoyedStart); err != nil {
		return rec, err
	}
	if rec.EnjoyedEndDate, err = parseDate(enjoyedEnd); err != nil {
		return rec, err
	}
	if rec.VerifiedAt, err = parseTimePtr(verifiedAt); err != nil {
		return rec, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return rec, err
	}
	return rec, nil
}
