// Package store defines the persistence contracts for research records and
// the memoization ledger, plus an in-memory implementation used for local
// development and tests. The SurrealDB implementation lives in internal/db.
package store

import (
	"context"
	"errors"

	"github.com/tomasbielik/precedent/internal/models"
)

// ErrNotFound indicates the requested research does not exist.
var ErrNotFound = errors.New("research not found")

// Store is the durable record of each research: lifecycle fields, the
// append-only event log and the terminal result or error.
type Store interface {
	CreateResearch(ctx context.Context, query, createdBy string) (*models.Research, error)
	GetResearch(ctx context.Context, id string) (*models.Research, error)
	// ListResearches returns one page ordered newest-first plus the total
	// record count. Pages are 1-based.
	ListResearches(ctx context.Context, page, perPage int) ([]models.Research, int, error)
	DeleteResearch(ctx context.Context, id string) error
	// ListPending returns researches never picked up by a worker
	// (no processing_started_at). Used for startup catch-up.
	ListPending(ctx context.Context) ([]models.Research, error)

	// MarkProcessingStarted is safely re-callable: the start timestamp is
	// set once, and a research that already reached a terminal state is
	// never made active again.
	MarkProcessingStarted(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, result string) error
	MarkFailed(ctx context.Context, id, errText string) error
	SetScope(ctx context.Context, id, problemDescription, question string) error
	SetReport(ctx context.Context, id, report string) error
	// AppendEvent atomically appends to the research's event log. It must
	// never lose an event to a concurrent append.
	AppendEvent(ctx context.Context, id string, ev models.Event) error
}

// Ledger memoizes per-research work so the same court decision is analysed
// at most once per research, and keeps per-keyword running counts.
type Ledger interface {
	// GetTrace returns the memo for (researchID, fileName), or nil if the
	// decision has not been classified within this research yet.
	GetTrace(ctx context.Context, researchID, fileName string) (*models.ResearchTrace, error)
	// CreateTraceIfAbsent writes the memo unless one already exists for
	// the key. First writer wins: the returned trace is the authoritative
	// one, and created reports whether this call wrote it.
	CreateTraceIfAbsent(ctx context.Context, trace models.ResearchTrace) (*models.ResearchTrace, bool, error)
	ListRelevantTraces(ctx context.Context, researchID string) ([]models.ResearchTrace, error)

	// BumpKeyword atomically increments the keyword's counters. Two
	// concurrent bumps for the same keyword must both be reflected.
	BumpKeyword(ctx context.Context, researchID, keyword string, analysedDelta, relevantDelta int) error
	ListKeywords(ctx context.Context, researchID string) ([]models.Keyword, error)
}
