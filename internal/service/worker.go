package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/tomasbielik/precedent/internal/queue"
	"github.com/tomasbielik/precedent/internal/store"
)

// Worker consumes work signals and runs the pipeline for each research.
// Signals carry only the research id; the record is the source of truth, so
// duplicate or stale signals are harmless.
type Worker struct {
	store       store.Store
	consumer    queue.Consumer
	pipeline    *Pipeline
	concurrency int
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewWorker creates a worker with the given pipeline concurrency.
func NewWorker(st store.Store, consumer queue.Consumer, pipeline *Pipeline, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:       st,
		consumer:    consumer,
		pipeline:    pipeline,
		concurrency: concurrency,
		logger:      logger,
		inFlight:    make(map[string]struct{}),
	}
}

// Start first catches up on researches that were pending before the worker
// came online (their signals are gone), then blocks consuming live signals
// until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	sem := make(chan struct{}, w.concurrency)

	pending, err := w.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending researches: %w", err)
	}
	if len(pending) > 0 {
		w.logger.Info("catching up on pending researches", "count", len(pending))
	}
	for _, r := range pending {
		w.dispatch(ctx, sem, r.ID)
	}

	return w.consumer.Consume(ctx, func(ctx context.Context, researchID string) error {
		w.dispatch(ctx, sem, researchID)
		return nil
	})
}

// dispatch runs one research on a pipeline goroutine. A research already in
// flight on this worker is skipped; the signal was a duplicate.
func (w *Worker) dispatch(ctx context.Context, sem chan struct{}, researchID string) {
	w.mu.Lock()
	if _, ok := w.inFlight[researchID]; ok {
		w.mu.Unlock()
		w.logger.Info("research already in flight", "research_id", researchID)
		return
	}
	w.inFlight[researchID] = struct{}{}
	w.mu.Unlock()

	go func() {
		defer w.release(researchID)

		// Acquire the pipeline slot here, not in the caller. A full pool
		// must never stall signal intake; later signals keep draining and
		// park on the semaphore instead.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-sem }()

		defer func() {
			if rec := recover(); rec != nil {
				w.logger.Error("pipeline panicked",
					"research_id", researchID, "panic", rec,
					"stack", string(debug.Stack()))
				if err := w.store.MarkFailed(ctx, researchID,
					"internal error while processing the research"); err != nil {
					w.logger.Error("mark failed after panic failed",
						"research_id", researchID, "error", err)
				}
			}
		}()

		if err := w.pipeline.Run(ctx, researchID); err != nil {
			w.logger.Error("pipeline run failed",
				"research_id", researchID, "error", err)
		}
	}()
}

func (w *Worker) release(researchID string) {
	w.mu.Lock()
	delete(w.inFlight, researchID)
	w.mu.Unlock()
}
