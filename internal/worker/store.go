package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const outputKeyPrefix = "render:output:"

// OutputKey returns the Redis key holding the rendered HTML of a request
func OutputKey(requestID string) string {
	return outputKeyPrefix + requestID
}

// OutputStore persists rendered pages
type OutputStore interface {
	Save(ctx context.Context, requestID, html string, ttl time.Duration) (string, error)
}

// RedisOutputStore stores rendered pages as plain Redis strings
type RedisOutputStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisOutputStore creates a new Redis output store
func NewRedisOutputStore(client *redis.Client, logger *zap.Logger) *RedisOutputStore {
	return &RedisOutputStore{
		client: client,
		logger: logger,
	}
}

// Save stores the output and returns its key. A zero ttl keeps it forever.
func (s *RedisOutputStore) Save(ctx context.Context, requestID, html string, ttl time.Duration) (string, error) {
	key := OutputKey(requestID)

	if err := s.client.Set(ctx, key, html, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to save output: %w", err)
	}

	return key, nil
}

// Load returns a stored output
func (s *RedisOutputStore) Load(ctx context.Context, requestID string) (string, error) {
	key := OutputKey(requestID)

	html, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("output not found for request %s", requestID)
		}
		return "", fmt.Errorf("failed to load output: %w", err)
	}

	return html, nil
}

// Delete removes a stored output
func (s *RedisOutputStore) Delete(ctx context.Context, requestID string) error {
	if err := s.client.Del(ctx, OutputKey(requestID)).Err(); err != nil {
		return fmt.Errorf("failed to delete output: %w", err)
	}

	return nil
}
