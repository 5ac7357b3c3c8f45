// Package bus provides the per-research event fanout: every progress event a
// worker records is published to the research's channel, and any number of
// gateway sessions can subscribe to it. Redis pub/sub backs the distributed
// setup; a local in-process fanout backs standalone mode and tests.
package bus

import (
	"context"

	"github.com/tomasbielik/precedent/internal/models"
)

// Bus publishes research progress events and hands out subscriptions.
type Bus interface {
	// Publish delivers the event to all current subscribers of the
	// research's channel. Subscribers joining later miss it; history
	// lives in the research record, not the bus.
	Publish(ctx context.Context, researchID string, ev models.Event) error

	// Subscribe opens a subscription for one research's events. The
	// caller must Close it when done.
	Subscribe(ctx context.Context, researchID string) (Subscription, error)
}

// Subscription is one subscriber's view of a research channel.
type Subscription interface {
	// Events returns the channel events arrive on. It is closed when the
	// subscription is closed or its backing connection is lost.
	Events() <-chan models.Event
	Close() error
}
