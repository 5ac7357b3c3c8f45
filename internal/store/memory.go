package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tomasbielik/precedent/internal/models"
)

// Memory is a mutex-guarded in-memory Store+Ledger. It backs standalone
// mode (no SurrealDB) and unit tests; semantics match the SurrealDB
// implementation, including first-writer-wins memos and atomic counter
// increments.
type Memory struct {
	mu        sync.RWMutex
	research map[string]*models.Research
	traces   map[string]map[string]*models.ResearchTrace // research id -> file name
	keywords map[string]map[string]*models.Keyword       // research id -> keyword
}

// Compile-time interface checks.
var (
	_ Store  = (*Memory)(nil)
	_ Ledger = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		research: make(map[string]*models.Research),
		traces:   make(map[string]map[string]*models.ResearchTrace),
		keywords: make(map[string]map[string]*models.Keyword),
	}
}

// CreateResearch creates a queued research with a fresh id.
func (m *Memory) CreateResearch(ctx context.Context, query, createdBy string) (*models.Research, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := &models.Research{
		ID:        uuid.New().String(),
		Query:     query,
		CreatedBy: createdBy,
		Events:    []models.Event{},
		CreatedAt: time.Now().UTC(),
	}
	m.research[r.ID] = r
	return copyResearch(r), nil
}

// GetResearch returns a copy of the research or ErrNotFound.
func (m *Memory) GetResearch(ctx context.Context, id string) (*models.Research, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.research[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyResearch(r), nil
}

// ListResearches returns one page ordered newest-first plus the total count.
func (m *Memory) ListResearches(ctx context.Context, page, perPage int) ([]models.Research, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*models.Research, 0, len(m.research))
	for _, r := range m.research {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	start := (page - 1) * perPage
	if start < 0 || start >= total {
		return []models.Research{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}

	out := make([]models.Research, 0, end-start)
	for _, r := range all[start:end] {
		out = append(out, *copyResearch(r))
	}
	return out, total, nil
}

// DeleteResearch removes the research and its ledger entries.
func (m *Memory) DeleteResearch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.research[id]; !ok {
		return ErrNotFound
	}
	delete(m.research, id)
	delete(m.traces, id)
	delete(m.keywords, id)
	return nil
}

// ListPending returns researches never picked up by a worker.
func (m *Memory) ListPending(ctx context.Context) ([]models.Research, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Research
	for _, r := range m.research {
		if r.ProcessingStartedAt == nil {
			out = append(out, *copyResearch(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MarkProcessingStarted sets the start timestamp once and flips the active
// flag, unless the research already reached a terminal state.
func (m *Memory) MarkProcessingStarted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.research[id]
	if !ok {
		return ErrNotFound
	}
	if r.ProcessingStartedAt == nil {
		now := time.Now().UTC()
		r.ProcessingStartedAt = &now
	}
	if !r.Terminal() {
		r.IsActive = true
	}
	return nil
}

// MarkCompleted records the terminal result and clears the active flag.
func (m *Memory) MarkCompleted(ctx context.Context, id, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.research[id]
	if !ok {
		return ErrNotFound
	}
	if r.Terminal() {
		return nil
	}
	r.Result = &result
	m.end(r)
	return nil
}

// MarkFailed records the terminal error and clears the active flag.
func (m *Memory) MarkFailed(ctx context.Context, id, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.research[id]
	if !ok {
		return ErrNotFound
	}
	if r.Terminal() {
		return nil
	}
	r.Error = &errText
	m.end(r)
	return nil
}

// end clears the active flag and stamps the end time. Caller holds the lock.
func (m *Memory) end(r *models.Research) {
	r.IsActive = false
	if r.ProcessingEndedAt == nil {
		now := time.Now().UTC()
		if r.ProcessingStartedAt != nil && now.Before(*r.ProcessingStartedAt) {
			now = *r.ProcessingStartedAt
		}
		r.ProcessingEndedAt = &now
	}
}

// SetScope records the scope fields established by the scoping stage.
func (m *Memory) SetScope(ctx context.Context, id, problemDescription, question string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.research[id]
	if !ok {
		return ErrNotFound
	}
	r.ProblemDescription = &problemDescription
	r.Question = &question
	return nil
}

// SetReport stores the synthesis artifact.
func (m *Memory) SetReport(ctx context.Context, id, report string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.research[id]
	if !ok {
		return ErrNotFound
	}
	r.Report = &report
	return nil
}

// AppendEvent appends to the research's event log under the store lock, so
// concurrent appends never lose an event.
func (m *Memory) AppendEvent(ctx context.Context, id string, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.research[id]
	if !ok {
		return ErrNotFound
	}
	r.Events = append(r.Events, ev)
	return nil
}

// GetTrace returns the memo for (researchID, fileName), or nil if absent.
func (m *Memory) GetTrace(ctx context.Context, researchID, fileName string) (*models.ResearchTrace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.traces[researchID][fileName]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// CreateTraceIfAbsent writes the memo unless one already exists for the key.
func (m *Memory) CreateTraceIfAbsent(ctx context.Context, trace models.ResearchTrace) (*models.ResearchTrace, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byFile, ok := m.traces[trace.ResearchID]
	if !ok {
		byFile = make(map[string]*models.ResearchTrace)
		m.traces[trace.ResearchID] = byFile
	}
	if existing, ok := byFile[trace.FileName]; ok {
		cp := *existing
		return &cp, false, nil
	}
	trace.CreatedAt = time.Now().UTC()
	byFile[trace.FileName] = &trace
	cp := trace
	return &cp, true, nil
}

// ListRelevantTraces returns the relevant memos for a research.
func (m *Memory) ListRelevantTraces(ctx context.Context, researchID string) ([]models.ResearchTrace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ResearchTrace
	for _, t := range m.traces[researchID] {
		if t.IsRelevant {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// BumpKeyword atomically increments the keyword counters.
func (m *Memory) BumpKeyword(ctx context.Context, researchID, keyword string, analysedDelta, relevantDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKeyword, ok := m.keywords[researchID]
	if !ok {
		byKeyword = make(map[string]*models.Keyword)
		m.keywords[researchID] = byKeyword
	}
	k, ok := byKeyword[keyword]
	if !ok {
		k = &models.Keyword{ResearchID: researchID, SearchKeyword: keyword}
		byKeyword[keyword] = k
	}
	k.AnalysedResults += analysedDelta
	k.RelevantResults += relevantDelta
	return nil
}

// ListKeywords returns the keyword history for a research.
func (m *Memory) ListKeywords(ctx context.Context, researchID string) ([]models.Keyword, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Keyword
	for _, k := range m.keywords[researchID] {
		out = append(out, *k)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SearchKeyword < out[j].SearchKeyword
	})
	return out, nil
}

func copyResearch(r *models.Research) *models.Research {
	cp := *r
	cp.Events = append([]models.Event(nil), r.Events...)
	return &cp
}
