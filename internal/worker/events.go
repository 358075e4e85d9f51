package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CompletionEvent is published after a page has been rendered and stored
type CompletionEvent struct {
	RequestID  string    `json:"request_id"`
	Template   string    `json:"template"`
	OutputKey  string    `json:"output_key"`
	Bytes      int       `json:"bytes"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorEvent is published when a job fails
type ErrorEvent struct {
	RequestID string    `json:"request_id"`
	Template  string    `json:"template"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes events to a stream
type Publisher interface {
	Publish(ctx context.Context, stream string, event any) error
}

// RedisPublisher publishes JSON events to Redis Streams
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger,
	}
}

// Publish adds the event to the stream under the "data" field
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// PingCheck reports whether Redis answers
func PingCheck(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
