package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tomasbielik/precedent/internal/models"
)

// LocalBus is an in-process fanout used in standalone mode and tests.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*localSubscription]struct{} // research id -> subscribers
	logger *slog.Logger
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus(logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{
		subs:   make(map[string]map[*localSubscription]struct{}),
		logger: logger,
	}
}

// Publish fans the event out to current subscribers. A subscriber that has
// fallen behind its buffer loses the event rather than blocking the worker;
// the durable log on the research record stays complete either way.
func (b *LocalBus) Publish(ctx context.Context, researchID string, ev models.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[researchID] {
		select {
		case sub.events <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"research_id", researchID, "type", ev.Type)
		}
	}
	return nil
}

// Subscribe registers a new subscriber for the research's events.
func (b *LocalBus) Subscribe(ctx context.Context, researchID string) (Subscription, error) {
	sub := &localSubscription{
		bus:        b,
		researchID: researchID,
		events:     make(chan models.Event, 16),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[researchID] == nil {
		b.subs[researchID] = make(map[*localSubscription]struct{})
	}
	b.subs[researchID][sub] = struct{}{}
	return sub, nil
}

type localSubscription struct {
	bus        *LocalBus
	researchID string
	events     chan models.Event
	closeOnce  sync.Once
}

func (s *localSubscription) Events() <-chan models.Event {
	return s.events
}

func (s *localSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.researchID], s)
		if len(s.bus.subs[s.researchID]) == 0 {
			delete(s.bus.subs, s.researchID)
		}
		s.bus.mu.Unlock()
		close(s.events)
	})
	return nil
}
