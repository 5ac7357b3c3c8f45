package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/tomasbielik/precedent/internal/metrics"
	"github.com/tomasbielik/precedent/internal/models"
	"github.com/tomasbielik/precedent/internal/store"
)

// Compile-time interface checks against the persistence contracts.
var (
	_ store.Store  = (*Client)(nil)
	_ store.Ledger = (*Client)(nil)
)

// researchRow is the database shape of a research record. The record id is a
// SurrealDB RecordID here and a plain string on the wire.
type researchRow struct {
	ID                  *surrealmodels.RecordID `json:"id,omitempty"`
	Query               string                  `json:"query"`
	CreatedBy           string                  `json:"created_by"`
	ProblemDescription  *string                 `json:"problem_description,omitempty"`
	Question            *string                 `json:"question,omitempty"`
	Events              []models.Event          `json:"events"`
	Result              *string                 `json:"result,omitempty"`
	Error               *string                 `json:"error,omitempty"`
	Report              *string                 `json:"report,omitempty"`
	IsActive            bool                    `json:"is_active"`
	CreatedAt           time.Time               `json:"created_at"`
	ProcessingStartedAt *time.Time              `json:"processing_started_at,omitempty"`
	ProcessingEndedAt   *time.Time              `json:"processing_ended_at,omitempty"`
}

func (r *researchRow) toModel() (*models.Research, error) {
	out := &models.Research{
		Query:               r.Query,
		CreatedBy:           r.CreatedBy,
		ProblemDescription:  r.ProblemDescription,
		Question:            r.Question,
		Events:              r.Events,
		Result:              r.Result,
		Error:               r.Error,
		Report:              r.Report,
		IsActive:            r.IsActive,
		CreatedAt:           r.CreatedAt,
		ProcessingStartedAt: r.ProcessingStartedAt,
		ProcessingEndedAt:   r.ProcessingEndedAt,
	}
	if out.Events == nil {
		out.Events = []models.Event{}
	}
	if r.ID != nil {
		id, err := models.RecordIDString(*r.ID)
		if err != nil {
			return nil, fmt.Errorf("research id: %w", err)
		}
		out.ID = id
	}
	return out, nil
}

// traceRow mirrors models.ResearchTrace; the record id is never surfaced.
type traceRow struct {
	ResearchID      string    `json:"research_id"`
	SearchKeyword   string    `json:"search_keyword"`
	FileName        string    `json:"file_name"`
	IsRelevant      bool      `json:"is_relevant"`
	Metadata        string    `json:"metadata"`
	Summary         string    `json:"summary"`
	RelevantParts   []string  `json:"relevant_parts"`
	LegalProvisions []string  `json:"legal_provisions"`
	CreatedAt       time.Time `json:"created_at"`
}

func (t *traceRow) toModel() models.ResearchTrace {
	return models.ResearchTrace{
		ResearchID:      t.ResearchID,
		SearchKeyword:   t.SearchKeyword,
		FileName:        t.FileName,
		IsRelevant:      t.IsRelevant,
		Metadata:        t.Metadata,
		Summary:         t.Summary,
		RelevantParts:   t.RelevantParts,
		LegalProvisions: t.LegalProvisions,
		CreatedAt:       t.CreatedAt,
	}
}

type keywordRow struct {
	ResearchID      string `json:"research_id"`
	SearchKeyword   string `json:"search_keyword"`
	AnalysedResults int    `json:"analysed_results"`
	RelevantResults int    `json:"relevant_results"`
}

// query runs a SurrealQL statement, recording timing on the attached metrics
// collector and normalizing SurrealDB errors via wrapQueryError.
func query[T any](ctx context.Context, c *Client, sql string, vars map[string]any) (*[]surrealdb.QueryResult[T], error) {
	start := time.Now()
	res, err := surrealdb.Query[T](ctx, c.db, sql, vars)
	if c.metrics != nil {
		c.metrics.RecordTiming(metrics.OpDBQuery, time.Since(start))
		if err != nil {
			c.metrics.RecordError(metrics.OpDBQuery)
		}
	}
	return res, wrapQueryError(err)
}

// CreateResearch inserts a queued research with a fresh id.
func (c *Client) CreateResearch(ctx context.Context, q, createdBy string) (*models.Research, error) {
	id := uuid.New().String()
	results, err := query[[]researchRow](ctx, c, `
		CREATE type::thing("research", $id) CONTENT {
			query: $query,
			created_by: $created_by,
			events: []
		} RETURN AFTER
	`, map[string]any{
		"id":         id,
		"query":      q,
		"created_by": createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create research: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create research: no result returned")
	}
	return (*results)[0].Result[0].toModel()
}

// GetResearch retrieves a research by id. Returns store.ErrNotFound if absent.
func (c *Client) GetResearch(ctx context.Context, id string) (*models.Research, error) {
	results, err := query[[]researchRow](ctx, c, `
		SELECT * FROM type::record("research", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get research: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, store.ErrNotFound
	}
	return (*results)[0].Result[0].toModel()
}

// ListResearches returns one page ordered newest-first plus the total count.
func (c *Client) ListResearches(ctx context.Context, page, perPage int) ([]models.Research, int, error) {
	if page < 1 {
		page = 1
	}
	results, err := query[[]researchRow](ctx, c, `
		SELECT * FROM research ORDER BY created_at DESC LIMIT $limit START $start
	`, map[string]any{
		"limit": perPage,
		"start": (page - 1) * perPage,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list researches: %w", err)
	}

	counts, err := query[[]struct {
		Total int `json:"total"`
	}](ctx, c, `SELECT count() AS total FROM research GROUP ALL`, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("count researches: %w", err)
	}
	total := 0
	if counts != nil && len(*counts) > 0 && len((*counts)[0].Result) > 0 {
		total = (*counts)[0].Result[0].Total
	}

	out := []models.Research{}
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			r, err := (*results)[0].Result[i].toModel()
			if err != nil {
				return nil, 0, err
			}
			out = append(out, *r)
		}
	}
	return out, total, nil
}

// DeleteResearch removes the research and its ledger records.
func (c *Client) DeleteResearch(ctx context.Context, id string) error {
	results, err := query[[]researchRow](ctx, c, `
		DELETE type::record("research", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete research: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return store.ErrNotFound
	}

	_, err = query[any](ctx, c, `
		DELETE research_trace WHERE research_id = $id;
		DELETE keyword WHERE research_id = $id;
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete research ledger: %w", err)
	}
	return nil
}

// ListPending returns researches never picked up by a worker, oldest first.
func (c *Client) ListPending(ctx context.Context) ([]models.Research, error) {
	results, err := query[[]researchRow](ctx, c, `
		SELECT * FROM research
		WHERE processing_started_at IS NONE AND result IS NONE AND error IS NONE
		ORDER BY created_at ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	var out []models.Research
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			r, err := (*results)[0].Result[i].toModel()
			if err != nil {
				return nil, err
			}
			out = append(out, *r)
		}
	}
	return out, nil
}

// MarkProcessingStarted stamps the pickup time once and flips the active
// flag. Re-delivered work signals hit this again without effect, and a
// research that already reached a terminal state is never reactivated.
func (c *Client) MarkProcessingStarted(ctx context.Context, id string) error {
	results, err := query[[]researchRow](ctx, c, `
		UPDATE type::record("research", $id) SET
			processing_started_at = processing_started_at ?? time::now(),
			is_active = IF result IS NONE AND error IS NONE THEN true ELSE is_active END
		RETURN AFTER
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark processing started: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkCompleted records the terminal result. A research that is already
// terminal keeps its original outcome.
func (c *Client) MarkCompleted(ctx context.Context, id, result string) error {
	return c.finish(ctx, id, "result", result)
}

// MarkFailed records the terminal error. A research that is already terminal
// keeps its original outcome.
func (c *Client) MarkFailed(ctx context.Context, id, errText string) error {
	return c.finish(ctx, id, "error", errText)
}

func (c *Client) finish(ctx context.Context, id, field, value string) error {
	sql := fmt.Sprintf(`
		UPDATE type::record("research", $id) SET
			%s = IF result IS NONE AND error IS NONE THEN $value ELSE %s END,
			is_active = false,
			processing_ended_at = processing_ended_at ?? time::now()
		RETURN AFTER
	`, field, field)
	results, err := query[[]researchRow](ctx, c, sql, map[string]any{
		"id":    id,
		"value": value,
	})
	if err != nil {
		return fmt.Errorf("mark %s: %w", field, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetScope records the scope fields established during the scoping stage.
func (c *Client) SetScope(ctx context.Context, id, problemDescription, question string) error {
	results, err := query[[]researchRow](ctx, c, `
		UPDATE type::record("research", $id) SET
			problem_description = $problem_description,
			question = $question
		RETURN AFTER
	`, map[string]any{
		"id":                  id,
		"problem_description": problemDescription,
		"question":            question,
	})
	if err != nil {
		return fmt.Errorf("set scope: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetReport stores the synthesis artifact.
func (c *Client) SetReport(ctx context.Context, id, report string) error {
	results, err := query[[]researchRow](ctx, c, `
		UPDATE type::record("research", $id) SET report = $report RETURN AFTER
	`, map[string]any{"id": id, "report": report})
	if err != nil {
		return fmt.Errorf("set report: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendEvent appends to the research's event log. The += array append is a
// single atomic statement, so concurrent appends never lose an event.
func (c *Client) AppendEvent(ctx context.Context, id string, ev models.Event) error {
	results, err := query[[]researchRow](ctx, c, `
		UPDATE type::record("research", $id) SET events += [$event] RETURN AFTER
	`, map[string]any{"id": id, "event": ev})
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetTrace returns the memo for (researchID, fileName), or nil if the
// decision has not been classified within this research yet.
func (c *Client) GetTrace(ctx context.Context, researchID, fileName string) (*models.ResearchTrace, error) {
	results, err := query[[]traceRow](ctx, c, `
		SELECT * FROM research_trace
		WHERE research_id = $research_id AND file_name = $file_name
		LIMIT 1
	`, map[string]any{
		"research_id": researchID,
		"file_name":   fileName,
	})
	if err != nil {
		return nil, fmt.Errorf("get trace: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	t := (*results)[0].Result[0].toModel()
	return &t, nil
}

// CreateTraceIfAbsent writes the memo unless one already exists for the
// (research_id, file_name) key. The unique index arbitrates races: the loser
// gets ErrAlreadyExists and reads back the winner's memo.
func (c *Client) CreateTraceIfAbsent(ctx context.Context, trace models.ResearchTrace) (*models.ResearchTrace, bool, error) {
	results, err := query[[]traceRow](ctx, c, `
		CREATE research_trace CONTENT {
			research_id: $research_id,
			search_keyword: $search_keyword,
			file_name: $file_name,
			is_relevant: $is_relevant,
			metadata: $metadata,
			summary: $summary,
			relevant_parts: $relevant_parts,
			legal_provisions: $legal_provisions
		} RETURN AFTER
	`, map[string]any{
		"research_id":      trace.ResearchID,
		"search_keyword":   trace.SearchKeyword,
		"file_name":        trace.FileName,
		"is_relevant":      trace.IsRelevant,
		"metadata":         trace.Metadata,
		"summary":          trace.Summary,
		"relevant_parts":   emptyIfNil(trace.RelevantParts),
		"legal_provisions": emptyIfNil(trace.LegalProvisions),
	})
	if errors.Is(err, ErrAlreadyExists) {
		existing, err := c.GetTrace(ctx, trace.ResearchID, trace.FileName)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("create trace: lost race but memo missing for %s/%s", trace.ResearchID, trace.FileName)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create trace: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, false, fmt.Errorf("create trace: no result returned")
	}
	t := (*results)[0].Result[0].toModel()
	return &t, true, nil
}

// ListRelevantTraces returns the relevant memos for a research, oldest first.
func (c *Client) ListRelevantTraces(ctx context.Context, researchID string) ([]models.ResearchTrace, error) {
	results, err := query[[]traceRow](ctx, c, `
		SELECT * FROM research_trace
		WHERE research_id = $research_id AND is_relevant = true
		ORDER BY created_at ASC
	`, map[string]any{"research_id": researchID})
	if err != nil {
		return nil, fmt.Errorf("list relevant traces: %w", err)
	}

	var out []models.ResearchTrace
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			out = append(out, (*results)[0].Result[i].toModel())
		}
	}
	return out, nil
}

// BumpKeyword atomically increments the keyword's counters. The record id is
// the deterministic [research_id, search_keyword] pair, so concurrent bumps
// land on the same row; transaction conflicts are retried.
func (c *Client) BumpKeyword(ctx context.Context, researchID, keyword string, analysedDelta, relevantDelta int) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		_, err = query[any](ctx, c, `
			UPSERT type::thing("keyword", [$research_id, $search_keyword]) SET
				research_id = $research_id,
				search_keyword = $search_keyword,
				analysed_results += $analysed,
				relevant_results += $relevant
		`, map[string]any{
			"research_id":    researchID,
			"search_keyword": keyword,
			"analysed":       analysedDelta,
			"relevant":       relevantDelta,
		})
		if !errors.Is(err, ErrTransactionConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("bump keyword: %w", err)
	}
	return nil
}

// ListKeywords returns the keyword history for a research.
func (c *Client) ListKeywords(ctx context.Context, researchID string) ([]models.Keyword, error) {
	results, err := query[[]keywordRow](ctx, c, `
		SELECT research_id, search_keyword, analysed_results, relevant_results
		FROM keyword
		WHERE research_id = $research_id
		ORDER BY search_keyword ASC
	`, map[string]any{"research_id": researchID})
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}

	var out []models.Keyword
	if results != nil && len(*results) > 0 {
		for _, k := range (*results)[0].Result {
			out = append(out, models.Keyword{
				ResearchID:      k.ResearchID,
				SearchKeyword:   k.SearchKeyword,
				AnalysedResults: k.AnalysedResults,
				RelevantResults: k.RelevantResults,
			})
		}
	}
	return out, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
