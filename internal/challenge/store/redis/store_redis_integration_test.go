//go:build integration

package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"popai/internal/challenge/models"
	challengeredis "popai/internal/challenge/store/redis"
	"popai/pkg/domain"
	"popai/pkg/platform/sentinel"
	"popai/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *challengeredis.RedisChallengeStore
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
	s.store = challengeredis.New(s.redis.Client, challengeredis.WithKeyPrefix("test:"))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) newChallenge(ttl time.Duration) *models.Challenge {
	id, err := domain.NewChallengeID()
	s.Require().NoError(err)
	now := time.Now().UTC()
	return &models.Challenge{
		ID:         id,
		PromptKind: models.PromptSayPhrase,
		PromptText: models.PromptSayPhrase.Text(),
		Nonce:      []byte("0123456789abcdef"),
		IssuedTo:   "alice",
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
}

func (s *RedisStoreSuite) TestRoundTripAndConsumeOnce() {
	ctx := context.Background()
	c := s.newChallenge(time.Minute)
	s.Require().NoError(s.store.Save(ctx, c))
	s.Require().ErrorIs(s.store.Save(ctx, c), sentinel.ErrConflict)

	got, err := s.store.Consume(ctx, c.ID, time.Now())
	s.Require().NoError(err)
	s.Equal(c.ID, got.ID)
	s.Equal(c.PromptKind, got.PromptKind)
	s.Equal(c.Nonce, got.Nonce)
	s.Equal(c.IssuedTo, got.IssuedTo)
	s.True(c.ExpiresAt.Equal(got.ExpiresAt))

	_, err = s.store.Consume(ctx, c.ID, time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestKeyTTLExpiresChallenge() {
	ctx := context.Background()
	c := s.newChallenge(200 * time.Millisecond)
	s.Require().NoError(s.store.Save(ctx, c))

	s.Eventually(func() bool {
		_, err := s.store.Consume(ctx, c.ID, time.Now())
		return err != nil
	}, 3*time.Second, 50*time.Millisecond)
}

func (s *RedisStoreSuite) TestStoredDeadlineIsAuthoritative() {
	ctx := context.Background()
	c := s.newChallenge(time.Minute)
	s.Require().NoError(s.store.Save(ctx, c))

	_, err := s.store.Consume(ctx, c.ID, c.ExpiresAt.Add(time.Second))
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *RedisStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	c := s.newChallenge(time.Minute)
	s.Require().NoError(s.store.Save(ctx, c))

	const goroutines = 50
	var wg sync.WaitGroup
	var wins atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Consume(ctx, c.ID, time.Now()); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
}
