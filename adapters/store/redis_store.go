package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/redis/go-redis/v9"
)

const (
	challengePrefix     = "resultproxy:challenge:"
	authorizationPrefix = "resultproxy:authorization:"
)

// compareAndDelete removes KEYS[1] only when it still holds ARGV[1]
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisChallengeStore is a Redis implementation of the ChallengeStore interface
type RedisChallengeStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisChallengeStore creates a new Redis challenge store
func NewRedisChallengeStore(client redis.UniversalClient) *RedisChallengeStore {
	return &RedisChallengeStore{
		client: client,
		prefix: challengePrefix,
	}
}

var _ ports.ChallengeStore = (*RedisChallengeStore)(nil)

// Save stores the challenge with an expiration, an existing entry keeps its TTL
func (s *RedisChallengeStore) Save(ctx context.Context, hash string, ttl time.Duration) error {
	if err := s.client.SetNX(ctx, s.prefix+hash, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) Contains(ctx context.Context, hash string) (bool, error) {
	val, err := s.client.Exists(ctx, s.prefix+hash).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check challenge: %w", err)
	}
	return val > 0, nil
}

func (s *RedisChallengeStore) Invalidate(ctx context.Context, hash string) error {
	if err := s.client.Del(ctx, s.prefix+hash).Err(); err != nil {
		return fmt.Errorf("failed to invalidate challenge: %w", err)
	}
	return nil
}

// RedisAuthorizationCache is a Redis implementation of the AuthorizationCache interface.
// Entries are stored as JSON documents.
type RedisAuthorizationCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisAuthorizationCache creates a new Redis authorization cache
func NewRedisAuthorizationCache(client redis.UniversalClient) *RedisAuthorizationCache {
	return &RedisAuthorizationCache{
		client: client,
		prefix: authorizationPrefix,
	}
}

var _ ports.AuthorizationCache = (*RedisAuthorizationCache)(nil)

func (c *RedisAuthorizationCache) PutIfAbsent(ctx context.Context, key string, auth core.WorkerpoolAuthorization, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(auth)
	if err != nil {
		return false, fmt.Errorf("failed to encode authorization: %w", err)
	}
	stored, err := c.client.SetNX(ctx, c.prefix+key, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store authorization: %w", err)
	}
	return stored, nil
}

func (c *RedisAuthorizationCache) Get(ctx context.Context, key string) (core.WorkerpoolAuthorization, error) {
	var auth core.WorkerpoolAuthorization
	payload, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth, core.ErrAuthorizationAbsent
	}
	if err != nil {
		return auth, fmt.Errorf("failed to read authorization: %w", err)
	}
	if err := json.Unmarshal(payload, &auth); err != nil {
		return auth, fmt.Errorf("failed to decode authorization: %w", err)
	}
	return auth, nil
}

func (c *RedisAuthorizationCache) CompareAndDelete(ctx context.Context, key string, auth core.WorkerpoolAuthorization) (bool, error) {
	payload, err := json.Marshal(auth)
	if err != nil {
		return false, fmt.Errorf("failed to encode authorization: %w", err)
	}
	deleted, err := compareAndDelete.Run(ctx, c.client, []string{c.prefix + key}, string(payload)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume authorization: %w", err)
	}
	return deleted > 0, nil
}
