package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis-backed work queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisQueue implements Producer+Consumer on a Redis pub/sub channel shared
// by all workers. Pub/sub has no persistence, so signals published while no
// worker was subscribed are lost; the worker's startup catch-up re-derives
// them from the store.
type RedisQueue struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "worker:new_research"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{client: client, channel: cfg.Channel, logger: logger}, nil
}

// Close closes the underlying Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Enqueue publishes the research id to the shared worker channel.
func (q *RedisQueue) Enqueue(ctx context.Context, researchID string) error {
	if err := q.client.Publish(ctx, q.channel, researchID).Err(); err != nil {
		return fmt.Errorf("enqueue research %s: %w", researchID, err)
	}
	return nil
}

// Consume subscribes to the worker channel and runs the handler for each
// signal until the context is cancelled. Handler errors are logged, not
// retried: the research record keeps the failure and catch-up will not
// resurrect terminal work.
func (q *RedisQueue) Consume(ctx context.Context, handler func(context.Context, string) error) error {
	pubsub := q.client.Subscribe(ctx, q.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", q.channel, err)
	}
	q.logger.Info("consuming work signals", "channel", q.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("work signal subscription closed")
			}
			if err := handler(ctx, msg.Payload); err != nil {
				q.logger.Error("work signal handler failed",
					"research_id", msg.Payload, "error", err)
			}
		}
	}
}
