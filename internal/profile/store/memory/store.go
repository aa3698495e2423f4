package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"referral/internal/profile/models"
	"referral/internal/profile/store"
	id "referral/pkg/domain"
	"referral/pkg/platform/sentinel"
)

// InMemory keeps profiles in process memory. A single mutex guards the
// primary map and the code index together, so the unique-code check and the
// insert form one atomic step.
type InMemory struct {
	mu        sync.RWMutex
	byAccount map[id.AccountID]*models.Profile
	codes     map[models.ReferralCode]id.AccountID
	referrals map[id.AccountID]map[id.AccountID]struct{}
}

func New() *InMemory {
	return &InMemory{
		byAccount: make(map[id.AccountID]*models.Profile),
		codes:     make(map[models.ReferralCode]id.AccountID),
		referrals: make(map[id.AccountID]map[id.AccountID]struct{}),
	}
}

func (s *InMemory) FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byAccount[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InMemory) FindByCode(ctx context.Context, code models.ReferralCode) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.codes[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	p, ok := s.byAccount[owner]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InMemory) CodeExists(ctx context.Context, code models.ReferralCode) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *InMemory) Create(ctx context.Context, profile *models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAccount[profile.AccountID]; ok {
		return store.ErrAccountExists
	}
	if _, ok := s.codes[profile.ReferralCode]; ok {
		return store.ErrCodeTaken
	}
	if profile.ReferredBy != nil {
		if *profile.ReferredBy == profile.AccountID {
			return store.ErrSelfReferral
		}
		if _, ok := s.byAccount[*profile.ReferredBy]; !ok {
			return sentinel.ErrNotFound
		}
	}
	s.byAccount[profile.AccountID] = profile.Clone()
	s.codes[profile.ReferralCode] = profile.AccountID
	if profile.ReferredBy != nil {
		s.addReferral(*profile.ReferredBy, profile.AccountID)
	}
	return nil
}

func (s *InMemory) UpdateDisplayName(ctx context.Context, accountID id.AccountID, name string, now time.Time) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byAccount[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	p.ApplyRename(name, now)
	return p.Clone(), nil
}

func (s *InMemory) SetReferredBy(ctx context.Context, accountID, referrerID id.AccountID, now time.Time) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if accountID == referrerID {
		return nil, store.ErrSelfReferral
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byAccount[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if _, ok := s.byAccount[referrerID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	if p.IsLinked() {
		return nil, store.ErrAlreadyLinked
	}
	p.ApplyLink(referrerID, now)
	s.addReferral(referrerID, accountID)
	return p.Clone(), nil
}

func (s *InMemory) ListReferrals(ctx context.Context, referrerID id.AccountID) ([]*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Profile, 0, len(s.referrals[referrerID]))
	for referee := range s.referrals[referrerID] {
		if p, ok := s.byAccount[referee]; ok {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) CountReferrals(ctx context.Context, referrerIDs []id.AccountID) (map[id.AccountID]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[id.AccountID]int, len(referrerIDs))
	for _, referrer := range referrerIDs {
		counts[referrer] = len(s.referrals[referrer])
	}
	return counts, nil
}

func (s *InMemory) addReferral(referrer, referee id.AccountID) {
	set, ok := s.referrals[referrer]
	if !ok {
		set = make(map[id.AccountID]struct{})
		s.referrals[referrer] = set
	}
	set[referee] = struct{}{}
}
