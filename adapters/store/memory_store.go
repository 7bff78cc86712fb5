package store

import (
	"context"
	"sync"
	"time"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
)

// MemoryChallengeStore is an in-memory implementation of the ChallengeStore interface
type MemoryChallengeStore struct {
	challenges map[string]time.Time // hash -> expiry
	mu         sync.RWMutex
	now        func() time.Time
}

// NewMemoryChallengeStore creates a new in-memory challenge store
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]time.Time),
		now:        time.Now,
	}
}

var _ ports.ChallengeStore = (*MemoryChallengeStore)(nil)

// Save stores a challenge. Saving an existing hash keeps its original expiry.
func (s *MemoryChallengeStore) Save(ctx context.Context, hash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, exists := s.challenges[hash]; exists && now.Before(expiry) {
		return nil
	}
	s.challenges[hash] = now.Add(ttl)
	return nil
}

func (s *MemoryChallengeStore) Contains(ctx context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, exists := s.challenges[hash]
	if !exists {
		return false, nil
	}
	return s.now().Before(expiry), nil
}

func (s *MemoryChallengeStore) Invalidate(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.challenges, hash)
	return nil
}

// Sweep drops expired challenges and returns how many were removed
func (s *MemoryChallengeStore) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for hash, expiry := range s.challenges {
		if !now.Before(expiry) {
			delete(s.challenges, hash)
			removed++
		}
	}
	return removed
}

type cachedAuthorization struct {
	auth   core.WorkerpoolAuthorization
	expiry time.Time
}

// MemoryAuthorizationCache is an in-memory implementation of the AuthorizationCache interface
type MemoryAuthorizationCache struct {
	entries map[string]cachedAuthorization
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryAuthorizationCache creates a new in-memory authorization cache
func NewMemoryAuthorizationCache() *MemoryAuthorizationCache {
	return &MemoryAuthorizationCache{
		entries: make(map[string]cachedAuthorization),
		now:     time.Now,
	}
}

var _ ports.AuthorizationCache = (*MemoryAuthorizationCache)(nil)

func (c *MemoryAuthorizationCache) PutIfAbsent(ctx context.Context, key string, auth core.WorkerpoolAuthorization, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, exists := c.entries[key]; exists && now.Before(entry.expiry) {
		return false, nil
	}
	c.entries[key] = cachedAuthorization{auth: auth, expiry: now.Add(ttl)}
	return true, nil
}

func (c *MemoryAuthorizationCache) Get(ctx context.Context, key string) (core.WorkerpoolAuthorization, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || !c.now().Before(entry.expiry) {
		return core.WorkerpoolAuthorization{}, core.ErrAuthorizationAbsent
	}
	return entry.auth, nil
}

func (c *MemoryAuthorizationCache) CompareAndDelete(ctx context.Context, key string, auth core.WorkerpoolAuthorization) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || !c.now().Before(entry.expiry) || entry.auth != auth {
		return false, nil
	}
	delete(c.entries, key)
	return true, nil
}

// Sweep drops expired authorizations and returns how many were removed
func (c *MemoryAuthorizationCache) Sweep(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
