package ports

import (
	"context"
	"time"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
)

// ChallengeStore keeps outstanding login challenges until they expire or are redeemed
type ChallengeStore interface {
	// Save stores a challenge hash for ttl, measured from now
	Save(ctx context.Context, hash string, ttl time.Duration) error
	Contains(ctx context.Context, hash string) (bool, error)
	// Invalidate removes a challenge, it is a no-op for unknown hashes
	Invalidate(ctx context.Context, hash string) error
}

// AuthorizationCache keeps workerpool authorizations between the token request
// of a worker and the upload of its enclave signed result.
type AuthorizationCache interface {
	// PutIfAbsent stores auth under key unless an entry already exists.
	// It reports whether the entry was stored.
	PutIfAbsent(ctx context.Context, key string, auth core.WorkerpoolAuthorization, ttl time.Duration) (bool, error)
	// Get returns core.ErrAuthorizationAbsent for missing or expired entries
	Get(ctx context.Context, key string) (core.WorkerpoolAuthorization, error)
	// CompareAndDelete removes the entry only if it still holds auth.
	// It reports whether this call removed it.
	CompareAndDelete(ctx context.Context, key string, auth core.WorkerpoolAuthorization) (bool, error)
}

// TokenRepository persists one access token per wallet
type TokenRepository interface {
	// FindByWalletAddress returns core.ErrTokenNotFound when no token is stored
	FindByWalletAddress(ctx context.Context, walletAddress string) (core.Jwt, error)
	// Create returns core.ErrTokenExists when the wallet already has a token
	Create(ctx context.Context, jwt core.Jwt) error
	// Replace swaps the token of previous, returns core.ErrVersionConflict when
	// the stored record is no longer at previous.Version
	Replace(ctx context.Context, previous core.Jwt, token string) (core.Jwt, error)
}

// ResultNameRepository maps tasks to the content-addressed handle of their result
type ResultNameRepository interface {
	// Save returns core.ErrResultAlreadyStored when a handle exists for the task
	Save(ctx context.Context, name core.ResultName) error
	// Find returns core.ErrResultNotFound when no handle exists for the task
	Find(ctx context.Context, chainTaskID string) (core.ResultName, error)
}
