package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/shuleplus/backend/internal/domain"
)

// Redis is the Cache implementation backed by Redis, for deployments with
// more than one backend instance. TTL enforcement is delegated to Redis key
// expiry.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed cache from a redis:// URL.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Ping verifies connectivity.
func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func cacheKey(userID string, segment domain.Segment) string {
	return fmt.Sprintf("subscription_cache:%s:%s", userID, segment)
}

func (c *Redis) Put(ctx context.Context, userID string, segment domain.Segment, rec *domain.SubscriptionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription record: %w", err)
	}

	pipe := c.client.TxPipeline()
	for _, other := range domain.AllSegments() {
		if other != segment {
			pipe.Del(ctx, cacheKey(userID, other))
		}
	}
	pipe.Set(ctx, cacheKey(userID, segment), data, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write subscription cache: %w", err)
	}
	return nil
}

func (c *Redis) Get(ctx context.Context, userID string, segment domain.Segment) (*domain.SubscriptionRecord, bool) {
	data, err := c.client.Get(ctx, cacheKey(userID, segment)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Cache] Redis read failed for %s: %v", userID, err)
		}
		return nil, false
	}

	var rec domain.SubscriptionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Printf("[Cache] Corrupt cache entry for %s: %v", userID, err)
		return nil, false
	}
	return &rec, true
}
