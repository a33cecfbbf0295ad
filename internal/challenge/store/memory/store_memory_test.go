package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"popai/internal/challenge/models"
	"popai/pkg/domain"
	"popai/pkg/platform/sentinel"
)

type ChallengeStoreSuite struct {
	suite.Suite
	store *InMemoryChallengeStore
	now   time.Time
}

func TestChallengeStoreSuite(t *testing.T) {
	suite.Run(t, new(ChallengeStoreSuite))
}

func (s *ChallengeStoreSuite) SetupTest() {
	s.store = New()
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *ChallengeStoreSuite) newChallenge(ttl time.Duration) *models.Challenge {
	id, err := domain.NewChallengeID()
	s.Require().NoError(err)
	return &models.Challenge{
		ID:         id,
		PromptKind: models.PromptNod,
		PromptText: models.PromptNod.Text(),
		Nonce:      []byte("0123456789abcdef"),
		IssuedTo:   "alice",
		IssuedAt:   s.now,
		ExpiresAt:  s.now.Add(ttl),
	}
}

func (s *ChallengeStoreSuite) TestSave() {
	ctx := context.Background()
	c := s.newChallenge(time.Minute)

	s.Require().NoError(s.store.Save(ctx, c))
	s.Require().ErrorIs(s.store.Save(ctx, c), sentinel.ErrConflict)

	n, err := s.store.Len(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *ChallengeStoreSuite) TestConsume() {
	ctx := context.Background()

	s.Run("returns the challenge exactly once", func() {
		c := s.newChallenge(time.Minute)
		s.Require().NoError(s.store.Save(ctx, c))

		got, err := s.store.Consume(ctx, c.ID, s.now)
		s.Require().NoError(err)
		s.Equal(c, got)

		_, err = s.store.Consume(ctx, c.ID, s.now)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown id is not found", func() {
		id, err := domain.NewChallengeID()
		s.Require().NoError(err)
		_, err = s.store.Consume(ctx, id, s.now)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("expired challenge is removed and reported expired", func() {
		c := s.newChallenge(time.Minute)
		s.Require().NoError(s.store.Save(ctx, c))

		_, err := s.store.Consume(ctx, c.ID, s.now.Add(2*time.Minute))
		s.Require().ErrorIs(err, sentinel.ErrExpired)

		_, err = s.store.Consume(ctx, c.ID, s.now)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestConcurrentConsume checks that among many racing consumers of the same
// challenge exactly one wins.
func (s *ChallengeStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	c := s.newChallenge(time.Minute)
	s.Require().NoError(s.store.Save(ctx, c))

	const goroutines = 64
	var wg sync.WaitGroup
	var wins, misses atomic.Int32
	start := make(chan struct{})
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.store.Consume(ctx, c.ID, s.now); err == nil {
				wins.Add(1)
			} else {
				misses.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), misses.Load())
}

func (s *ChallengeStoreSuite) TestDeleteExpired() {
	ctx := context.Background()
	short := s.newChallenge(time.Minute)
	long := s.newChallenge(time.Hour)
	s.Require().NoError(s.store.Save(ctx, short))
	s.Require().NoError(s.store.Save(ctx, long))

	deleted, err := s.store.DeleteExpired(ctx, s.now.Add(30*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, deleted)

	_, err = s.store.Consume(ctx, short.ID, s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Consume(ctx, long.ID, s.now)
	s.NoError(err)
}
