package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

const balanceColumns = `company_id, employee_id, leader_id, hire_date, calculation_base,
	work_time_factor, accrued_days, enjoyed_days, historical_enjoyed_days,
	approved_pending_days, available_days, last_accrual_date,
	suspension_periods_json, base_change_history_json, hire_date_change_history_json,
	version, created_at, updated_at`

// balanceJSON holds the embedded histories encoded for their columns.
type balanceJSON struct {
	suspensions, baseChanges, hireChanges string
}

func encodeHistories(st vacation.BalanceState) (balanceJSON, error) {
	var out balanceJSON
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&out.suspensions, nonNil(st.SuspensionPeriods)},
		{&out.baseChanges, nonNil(st.BaseChangeHistory)},
		{&out.hireChanges, nonNil(st.HireDateChangeHistory)},
	} {
		data, err := json.Marshal(f.v)
		if err != nil {
			return out, fmt.Errorf("encode balance %s: %w", st.Key(), err)
		}
		*f.dst = string(data)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// CreateBalance inserts a new balance.
func (s *Store) CreateBalance(ctx context.Context, st vacation.BalanceState) error {
	hist, err := encodeHistories(st)
	if err != nil {
		return err
	}
	if st.Version == 0 {
		st.Version = 1
	}
	_, err = s.exec(ctx, `INSERT INTO balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.CompanyID, st.EmployeeID, st.LeaderID, st.HireDate.String(), int(st.CalculationBase),
		st.WorkTimeFactor, st.AccruedDays, st.EnjoyedDays, st.HistoricalEnjoyedDays,
		st.ApprovedPendingDays, st.AvailableDays, dateValue(st.LastAccrualDate),
		hist.suspensions, hist.baseChanges, hist.hireChanges,
		st.Version, timeValue(st.CreatedAt), timeValue(st.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("balance %s: %w", st.Key(), generic.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert balance: %w", err)
	}
	return nil
}

// GetBalance retrieves the balance of an employee.
func (s *Store) GetBalance(ctx context.Context, companyID, employeeID string) (vacation.BalanceState, error) {
	row := s.queryRow(ctx, `SELECT `+balanceColumns+` FROM balances
		WHERE company_id = ? AND employee_id = ?`, companyID, employeeID)
	st, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vacation.BalanceState{}, generic.NotFound("balance", vacation.BalanceKey(companyID, employeeID))
	}
	return st, err
}

// SaveBalance overwrites a balance whose stored version is expectedVersion
// and bumps the version.
func (s *Store) SaveBalance(ctx context.Context, st vacation.BalanceState, expectedVersion int64) error {
	hist, err := encodeHistories(st)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE balances SET
			leader_id = ?, hire_date = ?, calculation_base = ?, work_time_factor = ?,
			accrued_days = ?, enjoyed_days = ?, historical_enjoyed_days = ?,
			approved_pending_days = ?, available_days = ?, last_accrual_date = ?,
			suspension_periods_json = ?, base_change_history_json = ?,
			hire_date_change_history_json = ?, version = ?, updated_at = ?
		WHERE company_id = ? AND employee_id = ? AND version = ?`,
		st.LeaderID, st.HireDate.String(), int(st.CalculationBase), st.WorkTimeFactor,
		st.AccruedDays, st.EnjoyedDays, st.HistoricalEnjoyedDays,
		st.ApprovedPendingDays, st.AvailableDays, dateValue(st.LastAccrualDate),
		hist.suspensions, hist.baseChanges, hist.hireChanges,
		expectedVersion+1, timeValue(st.UpdatedAt),
		st.CompanyID, st.EmployeeID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetBalance(ctx, st.CompanyID, st.EmployeeID); err != nil {
			return err
		}
		return fmt.Errorf("balance %s expected version %d: %w",
			st.Key(), expectedVersion, generic.ErrConcurrentModification)
	}
	return nil
}

// ListBalances returns every balance of a company, ordered by employee.
func (s *Store) ListBalances(ctx context.Context, companyID string) ([]vacation.BalanceState, error) {
	rows, err := s.query(ctx, `SELECT `+balanceColumns+` FROM balances
		WHERE company_id = ? ORDER BY employee_id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var out []vacation.BalanceState
	for rows.Next() {
		st, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListCompanies returns the companies that have at least one balance.
func (s *Store) ListCompanies(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT DISTINCT company_id FROM balances ORDER BY company_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBalance(row scanner) (vacation.BalanceState, error) {
	var (
		st                                 vacation.BalanceState
		hireDate, createdAt, updatedAt     string
		lastAccrual                        sql.NullString
		base                               int
		suspensions, baseChanges, hireHist string
	)
	err := row.Scan(
		&st.CompanyID, &st.EmployeeID, &st.LeaderID, &hireDate, &base,
		&st.WorkTimeFactor, &st.AccruedDays, &st.EnjoyedDays, &st.HistoricalEnjoyedDays,
		&st.ApprovedPendingDays, &st.AvailableDays, &lastAccrual,
		&suspensions, &baseChanges, &hireHist,
		&st.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return st, err
	}
	st.CalculationBase = vacation.CalculationBase(base)
	if st.HireDate, err = generic.ParseDate(hireDate); err != nil {
		return st, err
	}
	if st.LastAccrualDate, err = parseDate(lastAccrual); err != nil {
		return st, err
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return st, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return st, err
	}
	if err := json.Unmarshal([]byte(suspensions), &st.SuspensionPeriods); err != nil {
		return st, fmt.Errorf("decode suspensions of %s: %w", st.Key(), err)
	}
	if err := json.Unmarshal([]byte(baseChanges), &st.BaseChangeHistory); err != nil {
		return st, fmt.Errorf("decode base changes of %s: %w", st.Key(), err)
	}
	if err := json.Unmarshal([]byte(hireHist), &st.HireDateChangeHistory); err != nil {
		return st, fmt.Errorf("decode hire date changes of %s: %w", st.Key(), err)
	}
	return st, nil
}
