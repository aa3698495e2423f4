//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"referral/internal/profile/models"
	profileredis "referral/internal/profile/store/redis"
	"referral/internal/profile/store/storetest"
	"referral/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	storetest.Suite
	redis *containers.RedisContainer
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.NewStore = func() storetest.Store {
		s.Require().NoError(s.redis.FlushAll(context.Background()))
		return profileredis.NewRedis(s.redis.Client)
	}
}

// TestRecordLayout verifies the keys other tooling relies on.
func (s *RedisStoreSuite) TestRecordLayout() {
	ctx := context.Background()
	store := profileredis.NewRedis(s.redis.Client)
	p, err := models.NewProfile("layout", "Layout", "AYQUT234", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(store.Create(ctx, p))

	owner, err := s.redis.Client.Get(ctx, "profile:code:AYQUT234").Result()
	s.Require().NoError(err)
	s.Equal("layout", owner)

	n, err := s.redis.Client.Exists(ctx, "profile:acct:layout").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}
