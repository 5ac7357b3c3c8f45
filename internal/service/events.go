// Package service provides the business logic of the research fabric: intake
// of research requests, the worker that consumes work signals and the
// pipeline that runs one research end to end.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tomasbielik/precedent/internal/bus"
	"github.com/tomasbielik/precedent/internal/models"
	"github.com/tomasbielik/precedent/internal/store"
)

// Progress event types, in the order a research normally emits them.
const (
	EventStarted           = "started"
	EventScoping           = "scoping"
	EventScoped            = "scoped"
	EventPlanning          = "planning"
	EventSearching         = "searching"
	EventAnalysingResults  = "analysing_results"
	EventAnalysingDocument = "analysing_document"
	EventWritingReport     = "writing_report"
	EventEnded             = "ended"
)

// Recorder appends progress events to the durable log and fans them out to
// live subscribers. The durable append comes first: a watcher that missed a
// live event can always recover it from the research record.
type Recorder struct {
	store  store.Store
	bus    bus.Bus
	logger *slog.Logger
}

// NewRecorder creates a recorder over the given store and bus.
func NewRecorder(st store.Store, b bus.Bus, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: st, bus: b, logger: logger}
}

// Emit records one progress event. Failures are logged and swallowed; a
// broken progress feed must never abort the research itself.
func (r *Recorder) Emit(ctx context.Context, researchID, eventType string, data map[string]any) {
	ev := models.Event{
		Type: eventType,
		Data: data,
		At:   time.Now().UTC(),
	}

	if err := r.store.AppendEvent(ctx, researchID, ev); err != nil {
		r.logger.Error("append event failed",
			"research_id", researchID, "type", eventType, "error", err)
	}
	if err := r.bus.Publish(ctx, researchID, ev); err != nil {
		r.logger.Error("publish event failed",
			"research_id", researchID, "type", eventType, "error", err)
	}
}
