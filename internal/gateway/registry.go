// Package gateway fans research progress events out to WebSocket watchers.
// One bus subscription is held per watched research, shared by every session
// watching it: the first watcher starts the listener, the last one stops it.
package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tomasbielik/precedent/internal/bus"
	"github.com/tomasbielik/precedent/internal/models"
)

// sinkBuffer is the per-session event buffer. A session that cannot drain
// this many events loses the overflow; the durable log still has them.
const sinkBuffer = 32

// Registry multiplexes bus subscriptions across WebSocket sessions.
type Registry struct {
	bus    bus.Bus
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[string]*listener
}

type listener struct {
	sub    bus.Subscription
	cancel context.CancelFunc
	sinks  map[chan models.Event]struct{}
}

// NewRegistry creates a registry over the given bus.
func NewRegistry(b bus.Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		bus:       b,
		logger:    logger,
		listeners: make(map[string]*listener),
	}
}

// Subscribe attaches a new sink to the research's event feed and returns it.
// The first sink for a research opens the underlying bus subscription.
func (r *Registry) Subscribe(ctx context.Context, researchID string) (chan models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sink := make(chan models.Event, sinkBuffer)

	if l, ok := r.listeners[researchID]; ok {
		l.sinks[sink] = struct{}{}
		return sink, nil
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub, err := r.bus.Subscribe(subCtx, researchID)
	if err != nil {
		cancel()
		return nil, err
	}

	l := &listener{
		sub:    sub,
		cancel: cancel,
		sinks:  map[chan models.Event]struct{}{sink: {}},
	}
	r.listeners[researchID] = l

	go r.pump(researchID, l)
	return sink, nil
}

// Unsubscribe detaches a sink. The last sink for a research closes the
// underlying bus subscription.
func (r *Registry) Unsubscribe(researchID string, sink chan models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listeners[researchID]
	if !ok {
		return
	}
	if _, ok := l.sinks[sink]; !ok {
		return
	}
	delete(l.sinks, sink)
	close(sink)

	if len(l.sinks) == 0 {
		delete(r.listeners, researchID)
		l.cancel()
		if err := l.sub.Close(); err != nil {
			r.logger.Error("close bus subscription failed",
				"research_id", researchID, "error", err)
		}
	}
}

// pump copies bus events into every attached sink until the subscription
// closes. A full sink drops the event rather than stalling the others.
func (r *Registry) pump(researchID string, l *listener) {
	for ev := range l.sub.Events() {
		r.mu.Lock()
		for sink := range l.sinks {
			select {
			case sink <- ev:
			default:
				r.logger.Warn("dropping event for slow watcher",
					"research_id", researchID, "type", ev.Type)
			}
		}
		r.mu.Unlock()
	}

	// The subscription ended on its own, e.g. the bus connection dropped.
	// Detach any remaining sinks so their sessions observe the close.
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.listeners[researchID]; ok && cur == l {
		for sink := range l.sinks {
			close(sink)
		}
		delete(r.listeners, researchID)
		l.cancel()
	}
}
