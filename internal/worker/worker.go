package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/dago-view-render/internal/render"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	errorStreamSuffix = ".errors"

	// settleTimeout bounds acks and error events sent after Stop
	settleTimeout = 5 * time.Second
)

// Renderer renders an entry template to a string
type Renderer interface {
	RenderString(ctx context.Context, entry string, data map[string]any) (string, error)
}

// Settings configures the worker
type Settings struct {
	ID            string
	StreamKey     string
	ConsumerGroup string
	ResultStream  string
	ResultTTL     time.Duration
	BlockTime     time.Duration
	RenderTimeout time.Duration
}

// Job is a render request read from the stream
type Job struct {
	RequestID string         `json:"request_id"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data"`
}

// Worker consumes render jobs from a Redis stream
type Worker struct {
	settings    Settings
	redisClient *redis.Client
	renderer    Renderer
	store       OutputStore
	publisher   Publisher
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	now         func() time.Time
}

// NewWorker creates a new worker
func NewWorker(
	settings Settings,
	redisClient *redis.Client,
	renderer Renderer,
	store OutputStore,
	publisher Publisher,
	logger *zap.Logger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		settings:    settings,
		redisClient: redisClient,
		renderer:    renderer,
		store:       store,
		publisher:   publisher,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
}

// Start creates the consumer group if needed and starts consuming
func (w *Worker) Start() error {
	w.logger.Info("starting render worker",
		zap.String("worker_id", w.settings.ID),
		zap.String("stream_key", w.settings.StreamKey),
		zap.String("consumer_group", w.settings.ConsumerGroup),
	)

	if err := w.ensureConsumerGroup(); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	w.wg.Add(1)
	go w.processWork()

	w.logger.Info("render worker started", zap.String("worker_id", w.settings.ID))
	return nil
}

// Stop stops consuming and waits for the in-flight job
func (w *Worker) Stop() error {
	w.logger.Info("stopping render worker", zap.String("worker_id", w.settings.ID))

	w.cancel()
	w.wg.Wait()

	w.logger.Info("render worker stopped", zap.String("worker_id", w.settings.ID))
	return nil
}

// ensureConsumerGroup creates the consumer group if it doesn't exist
func (w *Worker) ensureConsumerGroup() error {
	err := w.redisClient.XGroupCreateMkStream(w.ctx, w.settings.StreamKey, w.settings.ConsumerGroup, "0").Err()
	if err != nil {
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			w.logger.Debug("consumer group already exists",
				zap.String("group", w.settings.ConsumerGroup),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("created consumer group",
		zap.String("group", w.settings.ConsumerGroup),
		zap.String("stream", w.settings.StreamKey),
	)
	return nil
}

// processWork reads jobs until the worker is stopped
func (w *Worker) processWork() {
	defer w.wg.Done()
	w.logger.Info("starting work processing loop")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("work processing loop stopped")
			return
		default:
		}

		streams, err := w.redisClient.XReadGroup(w.ctx, &redis.XReadGroupArgs{
			Group:    w.settings.ConsumerGroup,
			Consumer: w.settings.ID,
			Streams:  []string{w.settings.StreamKey, ">"},
			Count:    1,
			Block:    w.settings.BlockTime,
		}).Result()
		if err != nil {
			if err == redis.Nil || errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Error("failed to read from stream", zap.Error(err))
			select {
			case <-w.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				w.handleMessage(message)
			}
		}
	}
}

// handleMessage processes one message. Messages are always acknowledged;
// failures are reported on the error stream instead of being redelivered.
func (w *Worker) handleMessage(message redis.XMessage) {
	messageID := message.ID
	w.logger.Info("processing render request", zap.String("message_id", messageID))

	job, err := ParseJob(message.Values)
	if err != nil {
		w.logger.Error("failed to parse render request",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		w.acknowledgeMessage(messageID)
		return
	}

	// a job that was read finishes even when Stop is called meanwhile
	w.Process(context.WithoutCancel(w.ctx), job)
	w.acknowledgeMessage(messageID)
}

// ParseJob decodes the JSON "data" field of a stream message. Jobs without
// a request id get a generated one.
func ParseJob(values map[string]interface{}) (*Job, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'data' field")
	}

	var job Job
	if err := json.Unmarshal([]byte(dataStr), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal render request: %w", err)
	}
	if job.RequestID == "" {
		job.RequestID = uuid.NewString()
	}
	if job.Template == "" {
		return nil, fmt.Errorf("template is required")
	}

	return &job, nil
}

// Process renders a job, stores the output and publishes the outcome
func (w *Worker) Process(ctx context.Context, job *Job) {
	if err := w.render(ctx, job); err != nil {
		w.logger.Error("failed to process render request",
			zap.String("request_id", job.RequestID),
			zap.String("template", job.Template),
			zap.Error(err),
		)
		w.publishError(ctx, job, err)
	}
}

func (w *Worker) render(ctx context.Context, job *Job) error {
	if w.settings.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.settings.RenderTimeout)
		defer cancel()
	}

	start := w.now()
	html, err := w.renderer.RenderString(ctx, job.Template, job.Data)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	duration := w.now().Sub(start)

	key, err := w.store.Save(ctx, job.RequestID, html, w.settings.ResultTTL)
	if err != nil {
		return err
	}

	event := CompletionEvent{
		RequestID:  job.RequestID,
		Template:   job.Template,
		OutputKey:  key,
		Bytes:      len(html),
		DurationMS: duration.Milliseconds(),
		Timestamp:  w.now().UTC(),
	}
	if err := w.publisher.Publish(ctx, w.settings.ResultStream, event); err != nil {
		return fmt.Errorf("failed to publish completion: %w", err)
	}

	w.logger.Info("published render result",
		zap.String("request_id", job.RequestID),
		zap.String("output_key", key),
		zap.Int("bytes", len(html)),
	)
	return nil
}

// publishError publishes an error event
func (w *Worker) publishError(ctx context.Context, job *Job, err error) {
	ctx, cancel := settleContext(ctx)
	defer cancel()

	event := ErrorEvent{
		RequestID: job.RequestID,
		Template:  job.Template,
		Code:      render.ErrorCode(err),
		Error:     err.Error(),
		Timestamp: w.now().UTC(),
	}

	if publishErr := w.publisher.Publish(ctx, w.settings.ResultStream+errorStreamSuffix, event); publishErr != nil {
		w.logger.Error("failed to publish error event", zap.Error(publishErr))
	}
}

// acknowledgeMessage acknowledges a message from the stream
func (w *Worker) acknowledgeMessage(messageID string) {
	ctx, cancel := settleContext(w.ctx)
	defer cancel()

	err := w.redisClient.XAck(ctx, w.settings.StreamKey, w.settings.ConsumerGroup, messageID).Err()
	if err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// settleContext keeps the values of ctx but not its cancellation, so a
// message read before shutdown can still be reported and acknowledged.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}
