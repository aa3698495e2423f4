//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"referral/internal/profile/models"
	"referral/internal/profile/store"
	"referral/internal/profile/store/postgres"
	"referral/internal/profile/store/storetest"
	id "referral/pkg/domain"
	"referral/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	storetest.Suite
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.postgres.DB))

	s.NewStore = func() storetest.Store {
		s.Require().NoError(s.postgres.TruncateTables(context.Background(), "profiles"))
		return postgres.NewPostgres(s.postgres.DB)
	}
}

// TestMigrateIsIdempotent verifies the schema can be applied on every start.
func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(postgres.Migrate(context.Background(), s.postgres.DB))
}

// TestSchemaRejectsSelfReferral verifies the CHECK constraint backs the
// self-referral rule even for a row written outside the store.
func (s *PostgresStoreSuite) TestSchemaRejectsSelfReferral() {
	ctx := context.Background()
	db := postgres.NewPostgres(s.postgres.DB)
	now := time.Now()
	p, err := models.NewProfile("self", "Self", "SEFREF22", now)
	s.Require().NoError(err)
	s.Require().NoError(db.Create(ctx, p))

	_, err = s.postgres.DB.ExecContext(ctx, `UPDATE profiles SET referred_by = account_id WHERE account_id = 'self'`)
	s.Require().Error(err)
}

// TestConcurrentRedeemAcrossConnections races links from many pool
// connections; the row lock admits exactly one.
func (s *PostgresStoreSuite) TestConcurrentRedeemAcrossConnections() {
	ctx := context.Background()
	db := postgres.NewPostgres(s.postgres.DB)
	now := time.Now()

	redeemer, err := models.NewProfile("redeemer", "Redeemer", "REDEEM22", now)
	s.Require().NoError(err)
	s.Require().NoError(db.Create(ctx, redeemer))

	const goroutines = 20
	referrers := []id.AccountID{"referrer-a", "referrer-b", "referrer-c"}
	codes := []models.ReferralCode{"RFRAAAAA", "RFRBBBBB", "RFRCCCCC"}
	for i, code := range codes {
		referrer, err := models.NewProfile(referrers[i], "Referrer", code, now)
		s.Require().NoError(err)
		s.Require().NoError(db.Create(ctx, referrer))
	}

	var wg sync.WaitGroup
	var linked, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := db.SetReferredBy(ctx, "redeemer", referrers[n%len(referrers)], now)
			switch {
			case err == nil:
				linked.Add(1)
			case errors.Is(err, store.ErrAlreadyLinked):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), linked.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}
