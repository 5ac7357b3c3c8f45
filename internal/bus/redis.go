package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/tomasbielik/precedent/internal/models"
)

// channelName returns the pub/sub channel for one research.
func channelName(researchID string) string {
	return "research:" + researchID
}

// RedisConfig holds connection settings for the Redis-backed bus.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBus implements Bus on Redis pub/sub with one channel per research, so
// API instances and workers can run as separate processes.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisBus, error) {
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
	return &RedisBus{client: client, logger: logger}, nil
}

// Close closes the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Publish sends the event to the research's channel as JSON.
func (b *RedisBus) Publish(ctx context.Context, researchID string, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(researchID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe opens a Redis subscription for one research's channel.
func (b *RedisBus) Subscribe(ctx context.Context, researchID string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channelName(researchID))

	// Wait for the subscription to be confirmed so no event published
	// right after Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channelName(researchID), err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan models.Event, 16),
	}
	go sub.pump(b.logger, researchID)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan models.Event
}

func (s *redisSubscription) Events() <-chan models.Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

// pump decodes messages until the pubsub channel closes, then closes the
// event channel so readers observe the end of the stream.
func (s *redisSubscription) pump(logger *slog.Logger, researchID string) {
	defer close(s.events)

	for msg := range s.pubsub.Channel() {
		var ev models.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("dropping undecodable event", "research_id", researchID, "error", err)
			continue
		}
		s.events <- ev
	}
}
