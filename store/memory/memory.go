// Package memory provides an in-memory vacation.TxStore and audit.ReportStore
// for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/vacation-engine/audit"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type balanceKey struct {
	CompanyID  string
	EmployeeID string
}

type data struct {
	balances   map[balanceKey]vacation.BalanceState
	requests   map[string]vacation.Request // by request ID
	historical map[string]vacation.HistoricalRecord
	audit      []vacation.AuditLogEntry
	reports    []audit.Report
}

func newData() *data {
	return &data{
		balances:   make(map[balanceKey]vacation.BalanceState),
		requests:   make(map[string]vacation.Request),
		historical: make(map[string]vacation.HistoricalRecord),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.balances {
		c.balances[k] = cloneBalance(v)
	}
	for k, v := range d.requests {
		c.requests[k] = v
	}
	for k, v := range d.historical {
		c.historical[k] = v
	}
	c.audit = append([]vacation.AuditLogEntry(nil), d.audit...)
	c.reports = append([]audit.Report(nil), d.reports...)
	return c
}

func cloneBalance(s vacation.BalanceState) vacation.BalanceState {
	s.SuspensionPeriods = append([]vacation.SuspensionPeriod(nil), s.SuspensionPeriods...)
	s.BaseChangeHistory = append([]vacation.BaseChangeRecord(nil), s.BaseChangeHistory...)
	s.HireDateChangeHistory = append([]vacation.HireDateChangeRecord(nil), s.HireDateChangeHistory...)
	return s
}

// Memory is safe for concurrent use. WithTx holds the write lock for the
// whole callback and restores a snapshot if the callback fails.
type Memory struct {
	mu   sync.RWMutex
	data *data
}

func New() *Memory {
	return &Memory{data: newData()}
}

var (
	_ vacation.TxStore  = (*Memory)(nil)
	_ audit.ReportStore = (*Memory)(nil)
)

// WithTx executes fn atomically.
func (m *Memory) WithTx(ctx context.Context, fn func(vacation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&view{d: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Memory) read() *view {
	return &view{d: m.data}
}

// Locked wrappers. Each takes the lock and delegates to the unlocked view.

func (m *Memory) CreateBalance(ctx context.Context, s vacation.BalanceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().CreateBalance(ctx, s)
}

func (m *Memory) GetBalance(ctx context.Context, companyID, employeeID string) (vacation.BalanceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetBalance(ctx, companyID, employeeID)
}

func (m *Memory) SaveBalance(ctx context.Context, s vacation.BalanceState, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SaveBalance(ctx, s, expectedVersion)
}

func (m *Memory) ListBalances(ctx context.Context, companyID string) ([]vacation.BalanceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListBalances(ctx, companyID)
}

func (m *Memory) ListCompanies(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListCompanies(ctx)
}

func (m *Memory) CreateRequest(ctx context.Context, r vacation.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().CreateRequest(ctx, r)
}

func (m *Memory) GetRequest(ctx context.Context, companyID, requestID string) (vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetRequest(ctx, companyID, requestID)
}

func (m *Memory) SaveRequest(ctx context.Context, r vacation.Request, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().SaveRequest(ctx, r, expectedVersion)
}

func (m *Memory) ListRequestsByEmployee(ctx context.Context, companyID, employeeID string) ([]vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListRequestsByEmployee(ctx, companyID, employeeID)
}

func (m *Memory) ListRequests(ctx context.Context, companyID string) ([]vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListRequests(ctx, companyID)
}

func (m *Memory) CreateHistorical(ctx context.Context, rec vacation.HistoricalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().CreateHistorical(ctx, rec)
}

func (m *Memory) GetHistorical(ctx context.Context, companyID, recordID string) (vacation.HistoricalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().GetHistorical(ctx, companyID, recordID)
}

func (m *Memory) MarkHistoricalVerified(ctx context.Context, rec vacation.HistoricalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().MarkHistoricalVerified(ctx, rec)
}

func (m *Memory) ListHistorical(ctx context.Context, companyID, employeeID string) ([]vacation.HistoricalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListHistorical(ctx, companyID, employeeID)
}

func (m *Memory) AppendAudit(ctx context.Context, e vacation.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read().AppendAudit(ctx, e)
}

func (m *Memory) ListAudit(ctx context.Context, companyID string) ([]vacation.AuditLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListAudit(ctx, companyID)
}

func (m *Memory) ListAuditByEmployee(ctx context.Context, companyID, employeeID string) ([]vacation.AuditLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.read().ListAuditByEmployee(ctx, companyID, employeeID)
}

func (m *Memory) SaveReport(_ context.Context, r audit.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.reports = append(m.data.reports, r)
	return nil
}

func (m *Memory) LatestReport(_ context.Context, companyID string) (audit.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.data.reports) - 1; i >= 0; i-- {
		if m.data.reports[i].CompanyID == companyID {
			return m.data.reports[i], nil
		}
	}
	return audit.Report{}, generic.NotFound("audit report for company", companyID)
}

// PutBalanceRaw overwrites a stored balance without any validation or
// version check. Test fixtures use it to simulate corrupted rows.
func (m *Memory) PutBalanceRaw(s vacation.BalanceState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.balances[balanceKey{s.CompanyID, s.EmployeeID}] = cloneBalance(s)
}

// PutRequestRaw overwrites a stored request without validation.
func (m *Memory) PutRequestRaw(r vacation.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.requests[r.ID] = r
}

// =============================================================================
// VIEW - unlocked operations shared by Memory and WithTx
// =============================================================================

type view struct {
	d *data
}

func (v *view) CreateBalance(_ context.Context, s vacation.BalanceState) error {
	k := balanceKey{s.CompanyID, s.EmployeeID}
	if _, ok := v.d.balances[k]; ok {
		return fmt.Errorf("balance %s: %w", s.Key(), generic.ErrAlreadyExists)
	}
	if s.Version == 0 {
		s.Version = 1
	}
	v.d.balances[k] = cloneBalance(s)
	return nil
}

func (v *view) GetBalance(_ context.Context, companyID, employeeID string) (vacation.BalanceState, error) {
	s, ok := v.d.balances[balanceKey{companyID, employeeID}]
	if !ok {
		return vacation.BalanceState{}, generic.NotFound("balance", vacation.BalanceKey(companyID, employeeID))
	}
	return cloneBalance(s), nil
}

func (v *view) SaveBalance(_ context.Context, s vacation.BalanceState, expectedVersion int64) error {
	k := balanceKey{s.CompanyID, s.EmployeeID}
	current, ok := v.d.balances[k]
	if !ok {
		return generic.NotFound("balance", s.Key())
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("balance %s at version %d, expected %d: %w",
			s.Key(), current.Version, expectedVersion, generic.ErrConcurrentModification)
	}
	s.Version = expectedVersion + 1
	v.d.balances[k] = cloneBalance(s)
	return nil
}

func (v *view) ListBalances(_ context.Context, companyID string) ([]vacation.BalanceState, error) {
	var out []vacation.BalanceState
	for k, s := range v.d.balances {
		if k.CompanyID == companyID {
			out = append(out, cloneBalance(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out, nil
}

func (v *view) ListCompanies(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for k := range v.d.balances {
		if !seen[k.CompanyID] {
			seen[k.CompanyID] = true
			out = append(out, k.CompanyID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (v *view) CreateRequest(_ context.Context, r vacation.Request) error {
	if _, ok := v.d.requests[r.ID]; ok {
		return fmt.Errorf("request %s: %w", r.ID, generic.ErrAlreadyExists)
	}
	v.d.requests[r.ID] = r
	return nil
}

func (v *view) GetRequest(_ context.Context, companyID, requestID string) (vacation.Request, error) {
	r, ok := v.d.requests[requestID]
	if !ok || r.CompanyID != companyID {
		return vacation.Request{}, generic.NotFound("request", requestID)
	}
	return r, nil
}

func (v *view) SaveRequest(_ context.Context, r vacation.Request, expectedVersion int64) error {
	current, ok := v.d.requests[r.ID]
	if !ok || current.CompanyID != r.CompanyID {
		return generic.NotFound("request", r.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("request %s at version %d, expected %d: %w",
			r.ID, current.Version, expectedVersion, generic.ErrConcurrentModification)
	}
	r.Version = expectedVersion + 1
	v.d.requests[r.ID] = r
	return nil
}

func (v *view) ListRequestsByEmployee(_ context.Context, companyID, employeeID string) ([]vacation.Request, error) {
	var out []vacation.Request
	for _, r := range v.d.requests {
		if r.CompanyID == companyID && r.EmployeeID == employeeID {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func (v *view) ListRequests(_ context.Context, companyID string) ([]vacation.Request, error) {
	var out []vacation.Request
	for _, r := range v.d.requests {
		if r.CompanyID == companyID {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func sortRequests(rs []vacation.Request) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func (v *view) CreateHistorical(_ context.Context, rec vacation.HistoricalRecord) error {
	if _, ok := v.d.historical[rec.ID]; ok {
		return fmt.Errorf("historical record %s: %w", rec.ID, generic.ErrAlreadyExists)
	}
	v.d.historical[rec.ID] = rec
	return nil
}

func (v *view) GetHistorical(_ context.Context, companyID, recordID string) (vacation.HistoricalRecord, error) {
	rec, ok := v.d.historical[recordID]
	if !ok || rec.CompanyID != companyID {
		return vacation.HistoricalRecord{}, generic.NotFound("historical record", recordID)
	}
	return rec, nil
}

func (v *view) MarkHistoricalVerified(_ context.Context, rec vacation.HistoricalRecord) error {
	current, ok := v.d.historical[rec.ID]
	if !ok || current.CompanyID != rec.CompanyID {
		return generic.NotFound("historical record", rec.ID)
	}
	current.IsVerified = true
	current.VerifiedBy = rec.VerifiedBy
	current.VerifiedAt = rec.VerifiedAt
	v.d.historical[rec.ID] = current
	return nil
}

func (v *view) ListHistorical(_ context.Context, companyID, employeeID string) ([]vacation.HistoricalRecord, error) {
	var out []vacation.HistoricalRecord
	for _, rec := range v.d.historical {
		if rec.CompanyID == companyID && rec.EmployeeID == employeeID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) AppendAudit(_ context.Context, e vacation.AuditLogEntry) error {
	v.d.audit = append(v.d.audit, e)
	return nil
}

func (v *view) ListAudit(_ context.Context, companyID string) ([]vacation.AuditLogEntry, error) {
	var out []vacation.AuditLogEntry
	for _, e := range v.d.audit {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *view) ListAuditByEmployee(_ context.Context, companyID, employeeID string) ([]vacation.AuditLogEntry, error) {
	var out []vacation.AuditLogEntry
	for _, e := range v.d.audit {
		if e.CompanyID == companyID && e.EmployeeID == employeeID {
			out = append(out, e)
		}
	}
	return out, nil
}
