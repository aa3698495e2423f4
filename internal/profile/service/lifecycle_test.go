package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"referral/internal/profile/codegen"
	"referral/internal/profile/models"
	"referral/internal/profile/redemption"
	"referral/internal/profile/store/memory"
	id "referral/pkg/domain"
	dErrors "referral/pkg/domain-errors"
	audit "referral/pkg/platform/audit"
	"referral/pkg/platform/audit/publisher"
	auditmemory "referral/pkg/platform/audit/store/memory"
	"referral/pkg/requestcontext"
)

// LifecycleSuite runs the service against the in-memory store with the real
// generator and redemption engine.
type LifecycleSuite struct {
	suite.Suite
	store   *memory.InMemory
	audits  *auditmemory.InMemoryStore
	service *Service
	ctx     context.Context
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.store = memory.New()
	s.audits = auditmemory.NewInMemoryStore()
	s.service = New(s.store, codegen.New(s.store), redemption.New(s.store),
		WithAuditPublisher(publisher.NewPublisher(s.audits)),
	)
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func (s *LifecycleSuite) ensure(accountID id.AccountID, name string) *models.Profile {
	p, _, err := s.service.EnsureProfile(s.ctx, accountID, name)
	s.Require().NoError(err)
	return p
}

func (s *LifecycleSuite) TestReferralWalkthrough() {
	alina := s.ensure("acct-a", "Alina")
	s.True(alina.ReferralCode.Valid())
	s.Nil(alina.ReferredBy)

	again, created, err := s.service.EnsureProfile(s.ctx, "acct-a", "Somebody")
	s.Require().NoError(err)
	s.False(created)
	s.Equal(alina.ReferralCode, again.ReferralCode)
	s.Equal("Alina", again.DisplayName)

	s.ensure("acct-b", "Bo")
	result, err := s.service.Redeem(s.ctx, "acct-b", string(alina.ReferralCode))
	s.Require().NoError(err)
	s.Equal(id.AccountID("acct-a"), result.ReferrerAccountID)
	s.Equal("Alina", result.ReferrerDisplayName)
	s.Require().NotNil(result.Profile.ReferredBy)
	s.Equal(id.AccountID("acct-a"), *result.Profile.ReferredBy)

	unchanged, err := s.service.GetProfile(s.ctx, "acct-a")
	s.Require().NoError(err)
	s.Nil(unchanged.ReferredBy)
	s.Equal(alina.ReferralCode, unchanged.ReferralCode)

	cy := s.ensure("acct-c", "Cy")
	_, err = s.service.Redeem(s.ctx, "acct-b", string(cy.ReferralCode))
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyLinked))

	_, err = s.service.Redeem(s.ctx, "acct-a", string(alina.ReferralCode))
	s.True(dErrors.HasCode(err, dErrors.CodeSelfReferral))

	events, err := s.audits.ListByAccount(s.ctx, "acct-b")
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	s.Equal([]string{
		string(audit.EventProfileCreated),
		string(audit.EventReferralRedeemed),
		string(audit.EventRedemptionRejected),
	}, actions)
}

func (s *LifecycleSuite) TestRedeemRejectsUnknownAndMalformedCodes() {
	s.ensure("acct-a", "Alina")

	for _, code := range []string{"ZZZZZZZZ", "0OIL1OIL", "", "short"} {
		_, err := s.service.Redeem(s.ctx, "acct-a", code)
		s.True(dErrors.HasCode(err, dErrors.CodeReferralCodeNotFound), "code %q", code)
	}
}

func (s *LifecycleSuite) TestRedeemAcceptsLowercaseInput() {
	alina := s.ensure("acct-a", "Alina")
	s.ensure("acct-b", "Bo")

	_, err := s.service.Redeem(s.ctx, "acct-b", " "+strings.ToLower(string(alina.ReferralCode))+" ")
	s.Require().NoError(err)
}

func (s *LifecycleSuite) TestRenameKeepsCodeAndLink() {
	alina := s.ensure("acct-a", "Alina")
	s.ensure("acct-b", "Bo")
	_, err := s.service.Redeem(s.ctx, "acct-b", string(alina.ReferralCode))
	s.Require().NoError(err)

	renamed, err := s.service.RenameProfile(s.ctx, "acct-b", "Bo Renamed")
	s.Require().NoError(err)
	s.Equal("Bo Renamed", renamed.DisplayName)
	s.Require().NotNil(renamed.ReferredBy)
	s.Equal(id.AccountID("acct-a"), *renamed.ReferredBy)

	_, err = s.service.RenameProfile(s.ctx, "acct-z", "Nobody")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LifecycleSuite) TestCodesAreUniqueAcrossProfiles() {
	seen := make(map[models.ReferralCode]id.AccountID)
	for i := 0; i < 300; i++ {
		accountID := id.AccountID(fmt.Sprintf("acct-%03d", i))
		p := s.ensure(accountID, "User")
		owner, dup := seen[p.ReferralCode]
		s.Require().False(dup, "code %s reused by %s and %s", p.ReferralCode, owner, accountID)
		seen[p.ReferralCode] = accountID
	}
}

func (s *LifecycleSuite) TestConcurrentEnsureCreatesOneProfile() {
	const callers = 50
	var created atomic.Int32
	codes := make([]models.ReferralCode, callers)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			p, fresh, err := s.service.EnsureProfile(s.ctx, "acct-a", fmt.Sprintf("Caller %d", i))
			if err != nil {
				return err
			}
			if fresh {
				created.Add(1)
			}
			codes[i] = p.ReferralCode
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int32(1), created.Load())
	for _, code := range codes {
		s.Equal(codes[0], code)
	}
}

func (s *LifecycleSuite) TestConcurrentRedemptionsLinkOnce() {
	s.ensure("acct-b", "Bo")
	referrers := []id.AccountID{"acct-a", "acct-c", "acct-d", "acct-e"}
	codes := make([]models.ReferralCode, len(referrers))
	for i, r := range referrers {
		codes[i] = s.ensure(r, "Referrer").ReferralCode
	}

	var linked, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 40; i++ {
		code := codes[i%len(codes)]
		g.Go(func() error {
			_, err := s.service.Redeem(s.ctx, "acct-b", string(code))
			switch {
			case err == nil:
				linked.Add(1)
			case dErrors.HasCode(err, dErrors.CodeAlreadyLinked):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int32(1), linked.Load())
	s.Equal(int32(39), rejected.Load())

	stats, err := s.service.ReferralStats(s.ctx, referrers)
	s.Require().NoError(err)
	total := 0
	for _, n := range stats {
		total += n
	}
	s.Equal(1, total)
}

func (s *LifecycleSuite) TestReferralAtCreationIsCounted() {
	alina := s.ensure("acct-a", "Alina")

	for _, accountID := range []id.AccountID{"acct-b", "acct-c"} {
		p, created, err := s.service.EnsureProfile(s.ctx, accountID, "Friend", WithReferralCode(string(alina.ReferralCode)))
		s.Require().NoError(err)
		s.True(created)
		s.Require().NotNil(p.ReferredBy)
	}

	referrals, err := s.service.ListReferrals(s.ctx, "acct-a")
	s.Require().NoError(err)
	s.Len(referrals, 2)

	stats, err := s.service.ReferralStats(s.ctx, []id.AccountID{"acct-a", "acct-b", "acct-unknown"})
	s.Require().NoError(err)
	s.Equal(map[id.AccountID]int{"acct-a": 2, "acct-b": 0, "acct-unknown": 0}, stats)

	_, _, err = s.service.EnsureProfile(s.ctx, "acct-d", "Late", WithReferralCode("ZZZZZZZZ"))
	s.True(dErrors.HasCode(err, dErrors.CodeReferralCodeNotFound))
	_, err = s.service.GetProfile(s.ctx, "acct-d")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
