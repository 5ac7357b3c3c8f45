// Package queue carries work signals from the API to the worker pool. A
// signal is just a research id; the research record itself is the source of
// truth, so a lost or duplicated signal is recoverable. Redis pub/sub backs
// the distributed setup; a channel-backed queue backs standalone mode.
package queue

import "context"

// Producer signals that a research is ready to be processed.
type Producer interface {
	Enqueue(ctx context.Context, researchID string) error
}

// Consumer receives work signals and executes the handler for each. Delivery
// is at-least-once at best: handlers must tolerate duplicates, and startup
// catch-up covers signals lost while no consumer was listening.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, string) error) error
}
