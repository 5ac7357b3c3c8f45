package queue

import (
	"context"
	"log/slog"
)

// LocalQueue is a channel-backed queue used when the API embeds the worker
// in one process (standalone mode) and in tests.
type LocalQueue struct {
	ch     chan string
	logger *slog.Logger
}

// NewLocalQueue creates a buffered in-process queue.
func NewLocalQueue(bufferSize int, logger *slog.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalQueue{
		ch:     make(chan string, bufferSize),
		logger: logger,
	}
}

// Enqueue places the research id on the channel.
func (q *LocalQueue) Enqueue(ctx context.Context, researchID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- researchID:
		return nil
	}
}

// Consume runs the handler for each signal until the context is cancelled.
func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, string) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case researchID := <-q.ch:
			if err := handler(ctx, researchID); err != nil {
				q.logger.Error("work signal handler failed",
					"research_id", researchID, "error", err)
			}
		}
	}
}
