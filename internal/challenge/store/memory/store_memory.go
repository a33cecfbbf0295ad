package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"popai/internal/challenge/models"
	"popai/pkg/domain"
	"popai/pkg/platform/sentinel"
)

// Error Contract:
// - Consume returns ErrNotFound when the challenge does not exist or was
//   already consumed, and ErrExpired when it existed but is past expiry.
//   In both cases the challenge is gone afterwards.
// - Save returns ErrConflict if the ID is already present.

// InMemoryChallengeStore keeps outstanding challenges in a map guarded by a
// mutex. Consume is a single critical section: lookup and delete happen under
// one lock hold, so two concurrent consumers can never both succeed.
type InMemoryChallengeStore struct {
	mu         sync.RWMutex
	challenges map[domain.ChallengeID]*models.Challenge
}

// New constructs an empty in-memory challenge store.
func New() *InMemoryChallengeStore {
	return &InMemoryChallengeStore{
		challenges: make(map[domain.ChallengeID]*models.Challenge),
	}
}

func (s *InMemoryChallengeStore) Save(_ context.Context, c *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.challenges[c.ID]; exists {
		return fmt.Errorf("challenge %s already exists: %w", c.ID, sentinel.ErrConflict)
	}
	s.challenges[c.ID] = c
	return nil
}

// Consume atomically removes and returns the challenge.
func (s *InMemoryChallengeStore) Consume(_ context.Context, id domain.ChallengeID, now time.Time) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return nil, fmt.Errorf("challenge not found: %w", sentinel.ErrNotFound)
	}
	delete(s.challenges, id)
	if c.IsExpired(now) {
		return nil, fmt.Errorf("challenge expired at %s: %w", c.ExpiresAt.Format(time.RFC3339), sentinel.ErrExpired)
	}
	return c, nil
}

// DeleteExpired removes all challenges expired as of now.
// The time parameter is injected for testability.
func (s *InMemoryChallengeStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, c := range s.challenges {
		if c.IsExpired(now) {
			delete(s.challenges, id)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of outstanding challenges.
func (s *InMemoryChallengeStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.challenges), nil
}
