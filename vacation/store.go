/*
store.go - Persistence interfaces for balances, requests and the trail

PURPOSE:
  Defines the interface between the vacation rules and the database.
  Implementations: store/memory (tests, dev) and store/sqlstore
  (SQLite, PostgreSQL).

OPTIMISTIC VERSIONING:
  Balances and requests carry a Version. Save* takes the version the caller
  loaded and fails with ErrConcurrentModification if someone else wrote in
  between; on success the stored version is expected+1.

APPEND-ONLY:
  AuditTrail and historical records have no delete. Historical records only
  change through MarkHistoricalVerified (a one-way flag).

ATOMIC UNITS:
  TxStore.WithTx runs fn against a transactional view. If fn returns an
  error nothing it wrote is kept. Every engine mutation (balance, request,
  trail entry) happens inside one WithTx.

SEE ALSO:
  - engine.go: the mutate helper (lock -> tx -> load -> validate -> save)
  - store/sqlstore/sqlstore.go: SQL implementation
*/
package vacation

import "context"

// BalanceStore persists balances keyed by (companyID, employeeID).
type BalanceStore interface {
	// CreateBalance fails with ErrAlreadyExists when the key is taken.
	CreateBalance(ctx context.Context, state BalanceState) error
	GetBalance(ctx context.Context, companyID, employeeID string) (BalanceState, error)
	// SaveBalance writes state if the stored version equals expectedVersion.
	SaveBalance(ctx context.Context, state BalanceState, expectedVersion int64) error
	ListBalances(ctx context.Context, companyID string) ([]BalanceState, error)
	ListCompanies(ctx context.Context) ([]string, error)
}

// RequestStore persists vacation requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, r Request) error
	GetRequest(ctx context.Context, companyID, requestID string) (Request, error)
	SaveRequest(ctx context.Context, r Request, expectedVersion int64) error
	ListRequestsByEmployee(ctx context.Context, companyID, employeeID string) ([]Request, error)
	ListRequests(ctx context.Context, companyID string) ([]Request, error)
}

// HistoricalStore persists pre-onboarding vacation records.
type HistoricalStore interface {
	CreateHistorical(ctx context.Context, rec HistoricalRecord) error
	GetHistorical(ctx context.Context, companyID, recordID string) (HistoricalRecord, error)
	MarkHistoricalVerified(ctx context.Context, rec HistoricalRecord) error
	ListHistorical(ctx context.Context, companyID, employeeID string) ([]HistoricalRecord, error)
}

// AuditTrail is the append-only log of every mutation.
type AuditTrail interface {
	AppendAudit(ctx context.Context, entry AuditLogEntry) error
	ListAudit(ctx context.Context, companyID string) ([]AuditLogEntry, error)
	ListAuditByEmployee(ctx context.Context, companyID, employeeID string) ([]AuditLogEntry, error)
}

// Store is everything the engine reads and writes.
type Store interface {
	BalanceStore
	RequestStore
	HistoricalStore
	AuditTrail
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Locker serializes writers of the same balance key across goroutines or
// processes. Implementations live in package lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
