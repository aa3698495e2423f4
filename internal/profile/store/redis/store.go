package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"referral/internal/profile/models"
	"referral/internal/profile/store"
	id "referral/pkg/domain"
	"referral/pkg/platform/sentinel"
)

const (
	accountKeyPrefix   = "profile:acct:"
	codeKeyPrefix      = "profile:code:"
	referralsKeyPrefix = "profile:referrals:"

	// maxTxRetries bounds optimistic retries when a watched key changes.
	maxTxRetries = 10
)

// errRetriesExhausted is returned when WATCH keeps failing under contention.
var errRetriesExhausted = fmt.Errorf("redis transaction contention: %w", sentinel.ErrUnavailable)

// RedisStore keeps one JSON record per profile plus a code index key per
// referral code. Code index keys are never deleted, so a code stays taken
// for the lifetime of the keyspace.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed profile store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type profileRecord struct {
	AccountID    string    `json:"account_id"`
	DisplayName  string    `json:"display_name"`
	ReferralCode string    `json:"referral_code"`
	ReferredBy   string    `json:"referred_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func accountKey(accountID id.AccountID) string { return accountKeyPrefix + string(accountID) }
func codeKey(code models.ReferralCode) string { return codeKeyPrefix + string(code) }
func referralsKey(referrerID id.AccountID) string { return referralsKeyPrefix + string(referrerID) }

func (s *RedisStore) FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.Profile, error) {
	return getProfile(ctx, s.client, accountID)
}

func (s *RedisStore) FindByCode(ctx context.Context, code models.ReferralCode) (*models.Profile, error) {
	owner, err := s.client.Get(ctx, codeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("resolve referral code: %w", err)
	}
	return getProfile(ctx, s.client, id.AccountID(owner))
}

func (s *RedisStore) CodeExists(ctx context.Context, code models.ReferralCode) (bool, error) {
	n, err := s.client.Exists(ctx, codeKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("check referral code: %w", err)
	}
	return n > 0, nil
}

// Create writes the record, the code index key and, when a referrer is set,
// the referrer's membership set in one MULTI/EXEC guarded by WATCH.
func (s *RedisStore) Create(ctx context.Context, profile *models.Profile) error {
	keys := []string{accountKey(profile.AccountID), codeKey(profile.ReferralCode)}
	var referrer id.AccountID
	if profile.ReferredBy != nil {
		referrer = *profile.ReferredBy
		if referrer == profile.AccountID {
			return store.ErrSelfReferral
		}
		keys = append(keys, accountKey(referrer))
	}
	payload, err := json.Marshal(toRecord(profile))
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	return s.watch(ctx, func(tx *redis.Tx) error {
		if n, err := tx.Exists(ctx, accountKey(profile.AccountID)).Result(); err != nil {
			return fmt.Errorf("check account: %w", err)
		} else if n > 0 {
			return store.ErrAccountExists
		}
		if n, err := tx.Exists(ctx, codeKey(profile.ReferralCode)).Result(); err != nil {
			return fmt.Errorf("check referral code: %w", err)
		} else if n > 0 {
			return store.ErrCodeTaken
		}
		if referrer != "" {
			if n, err := tx.Exists(ctx, accountKey(referrer)).Result(); err != nil {
				return fmt.Errorf("check referrer: %w", err)
			} else if n == 0 {
				return sentinel.ErrNotFound
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, accountKey(profile.AccountID), payload, 0)
			pipe.Set(ctx, codeKey(profile.ReferralCode), string(profile.AccountID), 0)
			if referrer != "" {
				pipe.SAdd(ctx, referralsKey(referrer), string(profile.AccountID))
			}
			return nil
		})
		return err
	}, keys...)
}

func (s *RedisStore) UpdateDisplayName(ctx context.Context, accountID id.AccountID, name string, now time.Time) (*models.Profile, error) {
	var updated *models.Profile
	err := s.watch(ctx, func(tx *redis.Tx) error {
		p, err := getProfile(ctx, tx, accountID)
		if err != nil {
			return err
		}
		p.ApplyRename(name, now)
		payload, err := json.Marshal(toRecord(p))
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, accountKey(accountID), payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = p
		return nil
	}, accountKey(accountID))
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetReferredBy watches both records so a concurrent link to the same
// redeemer aborts the transaction and is re-evaluated as already linked.
func (s *RedisStore) SetReferredBy(ctx context.Context, accountID, referrerID id.AccountID, now time.Time) (*models.Profile, error) {
	if accountID == referrerID {
		return nil, store.ErrSelfReferral
	}
	var linked *models.Profile
	err := s.watch(ctx, func(tx *redis.Tx) error {
		p, err := getProfile(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if n, err := tx.Exists(ctx, accountKey(referrerID)).Result(); err != nil {
			return fmt.Errorf("check referrer: %w", err)
		} else if n == 0 {
			return sentinel.ErrNotFound
		}
		if p.IsLinked() {
			return store.ErrAlreadyLinked
		}
		p.ApplyLink(referrerID, now)
		payload, err := json.Marshal(toRecord(p))
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, accountKey(accountID), payload, 0)
			pipe.SAdd(ctx, referralsKey(referrerID), string(accountID))
			return nil
		})
		if err != nil {
			return err
		}
		linked = p
		return nil
	}, accountKey(accountID), accountKey(referrerID))
	if err != nil {
		return nil, err
	}
	return linked, nil
}

func (s *RedisStore) ListReferrals(ctx context.Context, referrerID id.AccountID) ([]*models.Profile, error) {
	members, err := s.client.SMembers(ctx, referralsKey(referrerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, member := range members {
		keys[i] = accountKeyPrefix + member
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load referrals: %w", err)
	}
	out := make([]*models.Profile, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		p, err := decodeProfile([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CountReferrals reads every set cardinality in one pipeline round trip.
func (s *RedisStore) CountReferrals(ctx context.Context, referrerIDs []id.AccountID) (map[id.AccountID]int, error) {
	counts := make(map[id.AccountID]int, len(referrerIDs))
	if len(referrerIDs) == 0 {
		return counts, nil
	}
	cmds := make([]*redis.IntCmd, len(referrerIDs))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, referrer := range referrerIDs {
			cmds[i] = pipe.SCard(ctx, referralsKey(referrer))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count referrals: %w", err)
	}
	for i, referrer := range referrerIDs {
		counts[referrer] = int(cmds[i].Val())
	}
	return counts, nil
}

// watch runs fn under WATCH on keys, retrying when a watched key changed
// between the reads and EXEC.
func (s *RedisStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errRetriesExhausted
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getProfile(ctx context.Context, c getter, accountID id.AccountID) (*models.Profile, error) {
	raw, err := c.Get(ctx, accountKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return decodeProfile(raw)
}

func decodeProfile(raw []byte) (*models.Profile, error) {
	var rec profileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	p := &models.Profile{
		AccountID:    id.AccountID(rec.AccountID),
		DisplayName:  rec.DisplayName,
		ReferralCode: models.ReferralCode(rec.ReferralCode),
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if rec.ReferredBy != "" {
		ref := id.AccountID(rec.ReferredBy)
		p.ReferredBy = &ref
	}
	return p, nil
}

func toRecord(p *models.Profile) profileRecord {
	rec := profileRecord{
		AccountID:    string(p.AccountID),
		DisplayName:  p.DisplayName,
		ReferralCode: string(p.ReferralCode),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.ReferredBy != nil {
		rec.ReferredBy = string(*p.ReferredBy)
	}
	return rec
}
