// Package storetest is a behavioural suite shared by every profile store
// backend. Backend tests run it against a fresh store per test.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"referral/internal/profile/models"
	"referral/internal/profile/store"
	id "referral/pkg/domain"
	"referral/pkg/platform/sentinel"
)

// Store is the full backend contract.
type Store interface {
	FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.Profile, error)
	FindByCode(ctx context.Context, code models.ReferralCode) (*models.Profile, error)
	CodeExists(ctx context.Context, code models.ReferralCode) (bool, error)
	Create(ctx context.Context, profile *models.Profile) error
	UpdateDisplayName(ctx context.Context, accountID id.AccountID, name string, now time.Time) (*models.Profile, error)
	SetReferredBy(ctx context.Context, accountID, referrerID id.AccountID, now time.Time) (*models.Profile, error)
	ListReferrals(ctx context.Context, referrerID id.AccountID) ([]*models.Profile, error)
	CountReferrals(ctx context.Context, referrerIDs []id.AccountID) (map[id.AccountID]int, error)
}

// Suite exercises a Store. NewStore must return an empty store.
type Suite struct {
	suite.Suite
	NewStore func() Store

	store Store
	ctx   context.Context
	seq   atomic.Int64
}

func (s *Suite) SetupTest() {
	s.store = s.NewStore()
	s.ctx = context.Background()
}

// nextCode returns a valid code unique within this suite run.
func (s *Suite) nextCode() models.ReferralCode {
	n := s.seq.Add(1)
	buf := []byte("AAAAAAAA")
	alphabet := models.CodeAlphabet
	for i := len(buf) - 1; i >= 0 && n > 0; i-- {
		buf[i] = alphabet[n%int64(len(alphabet))]
		n /= int64(len(alphabet))
	}
	return models.ReferralCode(buf)
}

func (s *Suite) newProfile(accountID string) *models.Profile {
	p, err := models.NewProfile(id.AccountID(accountID), "Name "+accountID, s.nextCode(), time.Now().UTC().Truncate(time.Millisecond))
	s.Require().NoError(err)
	return p
}

func (s *Suite) mustCreate(accountID string) *models.Profile {
	p := s.newProfile(accountID)
	s.Require().NoError(s.store.Create(s.ctx, p))
	return p
}

// TestCreationAndLookups verifies primary and secondary index reads.
func (s *Suite) TestCreationAndLookups() {
	s.Run("creates and finds profile by account", func() {
		p := s.mustCreate("lookup-a")

		found, err := s.store.FindByAccountID(s.ctx, p.AccountID)
		s.Require().NoError(err)
		s.Equal(p.AccountID, found.AccountID)
		s.Equal(p.DisplayName, found.DisplayName)
		s.Equal(p.ReferralCode, found.ReferralCode)
		s.Nil(found.ReferredBy)
		s.True(p.CreatedAt.Equal(found.CreatedAt))
	})

	s.Run("finds profile by referral code", func() {
		p := s.mustCreate("lookup-b")

		found, err := s.store.FindByCode(s.ctx, p.ReferralCode)
		s.Require().NoError(err)
		s.Equal(p.AccountID, found.AccountID)

		exists, err := s.store.CodeExists(s.ctx, p.ReferralCode)
		s.Require().NoError(err)
		s.True(exists)
	})

	s.Run("reports unknown account and code", func() {
		_, err := s.store.FindByAccountID(s.ctx, "missing")
		s.ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.FindByCode(s.ctx, "ZZZZZZZZ")
		s.ErrorIs(err, sentinel.ErrNotFound)

		exists, err := s.store.CodeExists(s.ctx, "ZZZZZZZZ")
		s.Require().NoError(err)
		s.False(exists)
	})
}

// TestUniqueness verifies both unique keys reject duplicates without overwriting.
func (s *Suite) TestUniqueness() {
	s.Run("rejects second profile for the same account", func() {
		first := s.mustCreate("dup-account")
		second := s.newProfile("dup-account")
		second.DisplayName = "Impostor"

		err := s.store.Create(s.ctx, second)
		s.ErrorIs(err, store.ErrAccountExists)
		s.ErrorIs(err, sentinel.ErrConflict)

		found, err := s.store.FindByAccountID(s.ctx, first.AccountID)
		s.Require().NoError(err)
		s.Equal(first.DisplayName, found.DisplayName)
		s.Equal(first.ReferralCode, found.ReferralCode)
	})

	s.Run("rejects a referral code already assigned", func() {
		first := s.mustCreate("dup-code-a")
		second := s.newProfile("dup-code-b")
		second.ReferralCode = first.ReferralCode

		err := s.store.Create(s.ctx, second)
		s.ErrorIs(err, store.ErrCodeTaken)
		s.ErrorIs(err, sentinel.ErrConflict)

		_, err = s.store.FindByAccountID(s.ctx, second.AccountID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("existing account wins over a missing referrer", func() {
		s.mustCreate("dup-with-ghost")
		second := s.newProfile("dup-with-ghost")
		ghost := id.AccountID("ghost-referrer")
		second.ReferredBy = &ghost

		err := s.store.Create(s.ctx, second)
		s.ErrorIs(err, store.ErrAccountExists)
	})

	s.Run("taken code wins over a missing referrer", func() {
		first := s.mustCreate("code-with-ghost-a")
		second := s.newProfile("code-with-ghost-b")
		second.ReferralCode = first.ReferralCode
		ghost := id.AccountID("ghost-referrer")
		second.ReferredBy = &ghost

		err := s.store.Create(s.ctx, second)
		s.ErrorIs(err, store.ErrCodeTaken)
	})
}

// TestRename verifies display name updates.
func (s *Suite) TestRename() {
	s.Run("persists new display name", func() {
		p := s.mustCreate("rename-a")
		now := p.CreatedAt.Add(time.Minute)

		updated, err := s.store.UpdateDisplayName(s.ctx, p.AccountID, "Renamed", now)
		s.Require().NoError(err)
		s.Equal("Renamed", updated.DisplayName)
		s.Equal(p.ReferralCode, updated.ReferralCode)

		found, err := s.store.FindByAccountID(s.ctx, p.AccountID)
		s.Require().NoError(err)
		s.Equal("Renamed", found.DisplayName)
		s.True(p.CreatedAt.Equal(found.CreatedAt))
	})

	s.Run("returns ErrNotFound for missing profile", func() {
		_, err := s.store.UpdateDisplayName(s.ctx, "missing", "Nobody", time.Now())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestReferralLink verifies the write-once referrer link.
func (s *Suite) TestReferralLink() {
	s.Run("links once and rejects a second link", func() {
		referrer := s.mustCreate("link-referrer")
		other := s.mustCreate("link-other")
		redeemer := s.mustCreate("link-redeemer")

		linked, err := s.store.SetReferredBy(s.ctx, redeemer.AccountID, referrer.AccountID, time.Now())
		s.Require().NoError(err)
		s.Require().NotNil(linked.ReferredBy)
		s.Equal(referrer.AccountID, *linked.ReferredBy)

		_, err = s.store.SetReferredBy(s.ctx, redeemer.AccountID, other.AccountID, time.Now())
		s.ErrorIs(err, store.ErrAlreadyLinked)

		found, err := s.store.FindByAccountID(s.ctx, redeemer.AccountID)
		s.Require().NoError(err)
		s.Require().NotNil(found.ReferredBy)
		s.Equal(referrer.AccountID, *found.ReferredBy)
	})

	s.Run("rejects self reference", func() {
		p := s.mustCreate("link-self")

		_, err := s.store.SetReferredBy(s.ctx, p.AccountID, p.AccountID, time.Now())
		s.ErrorIs(err, store.ErrSelfReferral)
	})

	s.Run("requires both profiles to exist", func() {
		p := s.mustCreate("link-lonely")

		_, err := s.store.SetReferredBy(s.ctx, p.AccountID, "ghost", time.Now())
		s.ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.SetReferredBy(s.ctx, "ghost", p.AccountID, time.Now())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("accepts a referrer at creation time", func() {
		referrer := s.mustCreate("create-referrer")
		p := s.newProfile("create-referee")
		ref := referrer.AccountID
		p.ReferredBy = &ref

		s.Require().NoError(s.store.Create(s.ctx, p))

		found, err := s.store.FindByAccountID(s.ctx, p.AccountID)
		s.Require().NoError(err)
		s.Require().NotNil(found.ReferredBy)
		s.Equal(referrer.AccountID, *found.ReferredBy)
	})
}

// TestReferralQueries verifies that counts and listings are derived from links.
func (s *Suite) TestReferralQueries() {
	referrer := s.mustCreate("query-referrer")
	idle := s.mustCreate("query-idle")
	for i := 0; i < 3; i++ {
		p := s.mustCreate(fmt.Sprintf("query-referee-%d", i))
		_, err := s.store.SetReferredBy(s.ctx, p.AccountID, referrer.AccountID, time.Now())
		s.Require().NoError(err)
	}

	referees, err := s.store.ListReferrals(s.ctx, referrer.AccountID)
	s.Require().NoError(err)
	s.Len(referees, 3)
	for _, p := range referees {
		s.Require().NotNil(p.ReferredBy)
		s.Equal(referrer.AccountID, *p.ReferredBy)
	}

	counts, err := s.store.CountReferrals(s.ctx, []id.AccountID{referrer.AccountID, idle.AccountID, "missing"})
	s.Require().NoError(err)
	s.Equal(3, counts[referrer.AccountID])
	s.Equal(0, counts[idle.AccountID])
	s.Equal(0, counts["missing"])
}

// TestConcurrentCreateSameAccount verifies at most one profile per account under a race.
func (s *Suite) TestConcurrentCreateSameAccount() {
	const goroutines = 20
	profiles := make([]*models.Profile, goroutines)
	for i := range profiles {
		profiles[i] = s.newProfile("race-account")
	}

	var wg sync.WaitGroup
	var successCount, conflictCount, otherCount atomic.Int32
	for _, p := range profiles {
		wg.Add(1)
		go func(p *models.Profile) {
			defer wg.Done()
			err := s.store.Create(s.ctx, p)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, store.ErrAccountExists):
				conflictCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}(p)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should see the account conflict")
	s.Equal(int32(0), otherCount.Load())
}

// TestConcurrentCreateSameCode verifies the code index under a race between accounts.
func (s *Suite) TestConcurrentCreateSameCode() {
	const goroutines = 20
	code := s.nextCode()

	var wg sync.WaitGroup
	var successCount, takenCount atomic.Int32
	for i := 0; i < goroutines; i++ {
		p := s.newProfile(fmt.Sprintf("race-code-%d", i))
		p.ReferralCode = code
		wg.Add(1)
		go func(p *models.Profile) {
			defer wg.Done()
			err := s.store.Create(s.ctx, p)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, store.ErrCodeTaken) {
				takenCount.Add(1)
			}
		}(p)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one profile may own the code")
	s.Equal(int32(goroutines-1), takenCount.Load())
}

// TestConcurrentLink verifies a redeemer is linked exactly once under a race.
func (s *Suite) TestConcurrentLink() {
	const goroutines = 10
	redeemer := s.mustCreate("race-redeemer")
	referrers := make([]*models.Profile, goroutines)
	for i := range referrers {
		referrers[i] = s.mustCreate(fmt.Sprintf("race-referrer-%d", i))
	}

	var wg sync.WaitGroup
	var successCount, linkedCount atomic.Int32
	for _, r := range referrers {
		wg.Add(1)
		go func(referrer id.AccountID) {
			defer wg.Done()
			_, err := s.store.SetReferredBy(s.ctx, redeemer.AccountID, referrer, time.Now())
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, store.ErrAlreadyLinked) {
				linkedCount.Add(1)
			}
		}(r.AccountID)
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one link should succeed")
	s.Equal(int32(goroutines-1), linkedCount.Load())

	counts, err := s.store.CountReferrals(s.ctx, accountIDs(referrers))
	s.Require().NoError(err)
	total := 0
	for _, c := range counts {
		total += c
	}
	s.Equal(1, total, "only the winning referrer gains a referee")
}

func accountIDs(profiles []*models.Profile) []id.AccountID {
	ids := make([]id.AccountID, len(profiles))
	for i, p := range profiles {
		ids[i] = p.AccountID
	}
	return ids
}
