package consentcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wso2/bookstore-consent-api/internal/models"
)

// RedisStore shares cached decisions between storefront instances
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*models.ConsentDecision, error) {
	raw, err := s.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read consent cache: %w", err)
	}

	var decision models.ConsentDecision
	if err := json.Unmarshal(raw, &decision); err != nil {
		// unreadable entries are dropped; the broker is asked again
		_ = s.client.Del(ctx, key.String()).Err()
		return nil, nil
	}
	return &decision, nil
}

func (s *RedisStore) Put(ctx context.Context, key Key, decision *models.ConsentDecision) error {
	if decision == nil {
		return nil
	}
	ttl := entryTTL(decision, s.ttl, s.now())
	if decision.ExpiresAt != nil && ttl <= 0 {
		return s.Invalidate(ctx, key)
	}

	raw, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to encode consent decision: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write consent cache: %w", err)
	}
	return nil
}

func (s *RedisStore) Invalidate(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate consent cache: %w", err)
	}
	return nil
}
