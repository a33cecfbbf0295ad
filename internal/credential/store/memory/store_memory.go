package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"popai/internal/credential/models"
	"popai/pkg/domain"
	"popai/pkg/platform/sentinel"
)

// Error Contract:
// - FindByTokenID and FindByOwner return ErrNotFound when absent.
// - MintOrGet never fails.

// InMemoryCredentialStore holds the ledger in process memory. The credential
// map, the owner index and the sequence counter are updated together under
// one lock hold.
type InMemoryCredentialStore struct {
	mu       sync.RWMutex
	template models.Template
	byToken  map[domain.TokenID]*models.Credential
	byOwner  map[domain.Identity]domain.TokenID
	next     uint64
}

func New(template models.Template) *InMemoryCredentialStore {
	return &InMemoryCredentialStore{
		template: template,
		byToken:  make(map[domain.TokenID]*models.Credential),
		byOwner:  make(map[domain.Identity]domain.TokenID),
	}
}

// MintOrGet returns owner's credential, minting it first if owner has none.
// minted reports whether this call created it.
func (s *InMemoryCredentialStore) MintOrGet(_ context.Context, owner domain.Identity, verificationHash string, issuedAt time.Time) (*models.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tokenID, ok := s.byOwner[owner]; ok {
		return clone(s.byToken[tokenID]), false, nil
	}
	c := s.template.Mint(s.next, owner, verificationHash, issuedAt)
	s.next++
	s.byToken[c.TokenID] = c
	s.byOwner[owner] = c.TokenID
	return clone(c), true, nil
}

func (s *InMemoryCredentialStore) FindByTokenID(_ context.Context, tokenID domain.TokenID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byToken[tokenID]
	if !ok {
		return nil, fmt.Errorf("credential %s: %w", tokenID, sentinel.ErrNotFound)
	}
	return clone(c), nil
}

func (s *InMemoryCredentialStore) FindByOwner(_ context.Context, owner domain.Identity) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokenID, ok := s.byOwner[owner]
	if !ok {
		return nil, fmt.Errorf("credential for owner: %w", sentinel.ErrNotFound)
	}
	return clone(s.byToken[tokenID]), nil
}

func (s *InMemoryCredentialStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byToken), nil
}

// clone keeps callers from mutating stored credentials.
func clone(c *models.Credential) *models.Credential {
	cp := *c
	return &cp
}
