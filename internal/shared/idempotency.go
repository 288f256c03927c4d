package shared

import (
	"context"
	"errors"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyPrefix  = "catalog:idem:"
	idempotencyPending = "\x00pending"
	maxIdempotencyKey  = 128
)

// IdempotencyStore remembers client-supplied request keys in Redis so a
// retried create returns the original resource instead of a duplicate.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Begin reserves key within scope. It returns the resource ID recorded by a
// completed earlier request, or "" when the caller now owns the key.
func (s *IdempotencyStore) Begin(ctx context.Context, scope, key string) (string, error) {
	if s == nil {
		return "", errors.New("idempotency store not initialised")
	}
	if !validKey(key) {
		return "", ErrIdempotencyKeyInvalid
	}
	redisKey := s.redisKey(scope, key)
	reserved, err := s.client.SetNX(ctx, redisKey, idempotencyPending, s.ttl).Result()
	if err != nil {
		return "", err
	}
	if reserved {
		return "", nil
	}
	existing, err := s.client.Get(ctx, redisKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrIdempotencyInFlight
		}
		return "", err
	}
	if existing == idempotencyPending {
		return "", ErrIdempotencyInFlight
	}
	return existing, nil
}

// Complete records resourceID as the outcome for key.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, resourceID string) error {
	if s == nil {
		return nil
	}
	return s.client.Set(ctx, s.redisKey(scope, key), resourceID, s.ttl).Err()
}

// Release forgets key so the client may retry after a failure.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s == nil {
		return nil
	}
	return s.client.Del(ctx, s.redisKey(scope, key)).Err()
}

func (s *IdempotencyStore) redisKey(scope, key string) string {
	return idempotencyPrefix + scope + ":" + key
}

func validKey(key string) bool {
	if key == "" || len(key) > maxIdempotencyKey {
		return false
	}
	for _, r := range key {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
