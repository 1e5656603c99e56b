//go:build integration

package sqlstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/store/sqlstore"
	"github.com/warp/vacation-engine/testutil/containers"
	"github.com/warp/vacation-engine/vacation"
)

type PostgresStoreSuite struct {
	suite.Suite
	store *sqlstore.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	dsn := containers.PostgresDSN(s.T())
	store, err := sqlstore.Open(context.Background(), sqlstore.DriverPostgres, dsn)
	s.Require().NoError(err)
	s.store = store
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *PostgresStoreSuite) TestBalanceRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateBalance(ctx, testBalance("pg-co", "emp-1")))

	got, err := s.store.GetBalance(ctx, "pg-co", "emp-1")
	s.Require().NoError(err)
	s.True(got.AvailableDays.Equal(dec("7.589")))
	s.Len(got.SuspensionPeriods, 1)

	err = s.store.CreateBalance(ctx, testBalance("pg-co", "emp-1"))
	s.ErrorIs(err, generic.ErrAlreadyExists)
}

// TestConcurrentSaves_OneWinner saves the same version from many goroutines;
// exactly one must succeed.
func (s *PostgresStoreSuite) TestConcurrentSaves_OneWinner() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateBalance(ctx, testBalance("pg-co", "emp-race")))

	const writers = 20
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.WithTx(ctx, func(tx vacation.Store) error {
				st, err := tx.GetBalance(ctx, "pg-co", "emp-race")
				if err != nil {
					return err
				}
				return tx.SaveBalance(ctx, st, 1)
			})
			switch {
			case err == nil:
				wins.Add(1)
			case generic.IsRetryable(err):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestAuditTrailOrder() {
	ctx := context.Background()
	for _, id := range []string{"pg-e1", "pg-e2", "pg-e3"} {
		s.Require().NoError(s.store.AppendAudit(ctx, vacation.AuditLogEntry{
			ID: id, CompanyID: "pg-audit", EmployeeID: "emp-1",
			Action: vacation.ActionAccrue, PerformedBy: "system", Quantity: dec("0.0411"), Timestamp: created,
		}))
	}
	entries, err := s.store.ListAudit(ctx, "pg-audit")
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal("pg-e1", entries[0].ID)
	s.Equal("pg-e3", entries[2].ID)
}
