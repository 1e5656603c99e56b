/*
Package sqlstore provides a SQL-backed implementation of the vacation and
audit storage interfaces, for SQLite and PostgreSQL.

PURPOSE:
  Implements vacation.TxStore and audit.ReportStore with database/sql.
  Queries are written once with "?" placeholders and rebound to "$n" for
  PostgreSQL; the schema only uses types both engines accept.

INTERFACES IMPLEMENTED:
  vacation.TxStore:   balances, requests, historical records, audit trail
  audit.ReportStore:  audit reports

KEY TABLES:
  balances:           one row per (company_id, employee_id); embedded
                      histories are JSON columns
  vacation_requests:  request lifecycle, optimistic version column
  historical_records: pre-onboarding consumption (append-only)
  audit_log:          append-only trail, no UPDATE or DELETE is ever issued
  audit_reports:      one row per audit run, body as JSON

OPTIMISTIC VERSIONING:
  SaveBalance / SaveRequest update "WHERE version = ?" and report
  ErrConcurrentModification when no row matched.

SQLITE:
  Opened with WAL and a single connection, so ":memory:" databases are shared
  by every statement and writers are serialized by database/sql itself.

USAGE:
  store, err := sqlstore.Open(ctx, "sqlite3", "./data/vacation.db")
  store, err := sqlstore.Open(ctx, "postgres", "postgres://...")
  defer store.Close()

SEE ALSO:
  - vacation/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/vacation-engine/audit"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// tsLayout has a fixed width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000Z"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements vacation.TxStore and audit.ReportStore.
type Store struct {
	db     *sql.DB
	conn   dbtx
	driver string
	inTx   bool
}

var (
	_ vacation.TxStore  = (*Store)(nil)
	_ audit.ReportStore = (*Store)(nil)
)

// Open connects, pings and migrates.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_journal_mode=WAL"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, conn: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewSQLite opens a SQLite database at path. Use ":memory:" for tests.
func NewSQLite(path string) (*Store, error) {
	return Open(context.Background(), DriverSQLite, path)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS balances (
			company_id TEXT NOT NULL,
			employee_id TEXT NOT NULL,
			leader_id TEXT NOT NULL DEFAULT '',
			hire_date TEXT NOT NULL,
			calculation_base INTEGER NOT NULL,
			work_time_factor TEXT NOT NULL,
			accrued_days TEXT NOT NULL,
			enjoyed_days TEXT NOT NULL,
			historical_enjoyed_days TEXT NOT NULL,
			approved_pending_days TEXT NOT NULL,
			available_days TEXT NOT NULL,
			last_accrual_date TEXT,
			suspension_periods_json TEXT NOT NULL,
			base_change_history_json TEXT NOT NULL,
			hire_date_change_history_json TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (company_id, employee_id)
		)`,
		`CREATE TABLE IF NOT EXISTS vacation_requests (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			employee_id TEXT NOT NULL,
			requested_days TEXT NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			status TEXT NOT NULL,
			leader_id TEXT NOT NULL DEFAULT '',
			leader_approval_date TEXT,
			leader_comments TEXT NOT NULL DEFAULT '',
			hr_approver_id TEXT NOT NULL DEFAULT '',
			hr_approval_date TEXT,
			hr_comments TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			rejected_by TEXT NOT NULL DEFAULT '',
			scheduled_at TEXT,
			enjoyed_date TEXT,
			cancelled_by TEXT NOT NULL DEFAULT '',
			cancellation_reason TEXT NOT NULL DEFAULT '',
			cancelled_at TEXT,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_company_employee
			ON vacation_requests(company_id, employee_id)`,
		`CREATE TABLE IF NOT EXISTS historical_records (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			employee_id TEXT NOT NULL,
			service_start TEXT NOT NULL,
			service_end TEXT NOT NULL,
			days_enjoyed TEXT NOT NULL,
			enjoyed_start_date TEXT,
			enjoyed_end_date TEXT,
			type TEXT NOT NULL,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			verified_by TEXT NOT NULL DEFAULT '',
			verified_at TEXT,
			registered_by TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_historical_company_employee
			ON historical_records(company_id, employee_id)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			` + s.seqColumn() + `,
			id TEXT NOT NULL UNIQUE,
			company_id TEXT NOT NULL,
			employee_id TEXT NOT NULL,
			action TEXT NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			performed_by TEXT NOT NULL,
			previous_state_json TEXT,
			new_state_json TEXT,
			quantity TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_company
			ON audit_log(company_id, seq)`,
		`CREATE TABLE IF NOT EXISTS audit_reports (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			status TEXT NOT NULL,
			report_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_reports_company
			ON audit_reports(company_id, timestamp)`,
	}
	for _, stmt := range schema {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction. Nested calls reuse the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Store{db: s.db, conn: tx, driver: s.driver, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// =============================================================================
// DIALECT
// =============================================================================

// rebind rewrites "?" placeholders to "$n" for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, s.rebind(query), args...)
}

// seqColumn is the insertion-order key of append-only tables.
func (s *Store) seqColumn() string {
	if s.driver == DriverPostgres {
		return "seq BIGSERIAL PRIMARY KEY"
	}
	return "seq INTEGER PRIMARY KEY AUTOINCREMENT"
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func dateValue(tp generic.TimePoint) sql.NullString {
	if tp.IsZero() {
		return sql.NullString{}
	}
	return nullString(tp.String())
}

func parseDate(ns sql.NullString) (generic.TimePoint, error) {
	if !ns.Valid || ns.String == "" {
		return generic.TimePoint{}, nil
	}
	return generic.ParseDate(ns.String)
}

func timeValue(t time.Time) string { return t.UTC().Format(tsLayout) }

func timePtrValue(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(timeValue(*t))
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
