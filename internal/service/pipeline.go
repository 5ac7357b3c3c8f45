package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tomasbielik/precedent/internal/agent"
	"github.com/tomasbielik/precedent/internal/docs"
	"github.com/tomasbielik/precedent/internal/models"
	"github.com/tomasbielik/precedent/internal/store"
)

// Analyst is the LLM-backed decision surface the pipeline runs on.
// *agent.Analyst implements it; tests substitute scripted fakes.
type Analyst interface {
	Scope(ctx context.Context, query string) (agent.Scope, error)
	PlanKeywords(ctx context.Context, scope agent.Scope, relevant []models.ResearchTrace, history []models.Keyword) ([]string, error)
	SelectResults(ctx context.Context, scope agent.Scope, results []docs.SearchResult) ([]string, error)
	ClassifyDocument(ctx context.Context, scope agent.Scope, fileName string, doc []byte) (agent.Classification, error)
	WriteReport(ctx context.Context, scope agent.Scope, relevant []models.ResearchTrace) (string, error)
}

// DecisionIndex is the search/fetch surface of the court decision index.
type DecisionIndex interface {
	Search(ctx context.Context, keyword string, limit int) (*docs.SearchResponse, error)
	Fetch(ctx context.Context, fileName string) ([]byte, error)
}

// PipelineConfig tunes one pipeline run.
type PipelineConfig struct {
	// MaxTurns caps the number of planning and search steps before the
	// run is forced into synthesis with whatever it has found.
	MaxTurns int
	// SearchLimit is the per-keyword result cap passed to the index.
	SearchLimit int
	// AnalysisFanout bounds how many decisions are classified in
	// parallel within one keyword round.
	AnalysisFanout int
}

func (c *PipelineConfig) normalize() {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 40
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 50
	}
	if c.AnalysisFanout <= 0 {
		c.AnalysisFanout = 4
	}
}

// Pipeline runs one research end to end: scope, iterative keyword search
// and decision analysis, then report synthesis.
type Pipeline struct {
	store    store.Store
	ledger   store.Ledger
	index    DecisionIndex
	analyst  Analyst
	recorder *Recorder
	cfg      PipelineConfig
	logger   *slog.Logger
}

// NewPipeline wires a pipeline from its dependencies.
func NewPipeline(st store.Store, ledger store.Ledger, index DecisionIndex, analyst Analyst, recorder *Recorder, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    st,
		ledger:   ledger,
		index:    index,
		analyst:  analyst,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run processes one research to a terminal state. The ended event is always
// the last thing emitted, after the terminal outcome is durable.
func (p *Pipeline) Run(ctx context.Context, researchID string) error {
	research, err := p.store.GetResearch(ctx, researchID)
	if err != nil {
		return fmt.Errorf("load research: %w", err)
	}
	if research.Terminal() {
		p.logger.Info("skipping terminal research", "research_id", researchID)
		return nil
	}

	if err := p.store.MarkProcessingStarted(ctx, researchID); err != nil {
		return fmt.Errorf("mark processing started: %w", err)
	}
	p.recorder.Emit(ctx, researchID, EventStarted, nil)

	runErr := p.run(ctx, research)
	status := models.StatusCompleted
	if runErr != nil {
		p.logger.Error("research failed", "research_id", researchID, "error", runErr)
		if err := p.store.MarkFailed(ctx, researchID, runErr.Error()); err != nil {
			p.logger.Error("mark failed failed", "research_id", researchID, "error", err)
		}
		status = models.StatusFailed
	}

	p.recorder.Emit(ctx, researchID, EventEnded, map[string]any{"status": status})
	return runErr
}

func (p *Pipeline) run(ctx context.Context, research *models.Research) error {
	id := research.ID

	p.recorder.Emit(ctx, id, EventScoping, nil)
	scope, err := p.analyst.Scope(ctx, research.Query)
	if err != nil {
		return err
	}
	if err := p.store.SetScope(ctx, id, scope.ProblemDescription, scope.Question); err != nil {
		return err
	}
	p.recorder.Emit(ctx, id, EventScoped, map[string]any{
		"problem_description": scope.ProblemDescription,
		"question":            scope.Question,
	})

	// Search phase. Each planning round and each keyword searched costs
	// one turn; the ceiling forces synthesis no matter how the planner
	// behaves.
	turns := 0
	for turns < p.cfg.MaxTurns {
		turns++
		p.recorder.Emit(ctx, id, EventPlanning, nil)

		relevant, err := p.ledger.ListRelevantTraces(ctx, id)
		if err != nil {
			return err
		}
		history, err := p.ledger.ListKeywords(ctx, id)
		if err != nil {
			return err
		}

		keywords, err := p.analyst.PlanKeywords(ctx, scope, relevant, history)
		if err != nil {
			return err
		}
		keywords = dropTried(keywords, history)
		if len(keywords) == 0 {
			break
		}

		for _, keyword := range keywords {
			if turns >= p.cfg.MaxTurns {
				break
			}
			turns++
			if err := p.searchKeyword(ctx, id, scope, keyword); err != nil {
				return err
			}
		}
	}

	return p.synthesize(ctx, id, scope)
}

// searchKeyword runs one keyword round: query the index, triage the hits,
// classify the selected decisions and bump the keyword counters once.
func (p *Pipeline) searchKeyword(ctx context.Context, id string, scope agent.Scope, keyword string) error {
	p.recorder.Emit(ctx, id, EventSearching, map[string]any{
		"search_keyword": keyword,
		"limit":          p.cfg.SearchLimit,
	})

	resp, err := p.index.Search(ctx, keyword, p.cfg.SearchLimit)
	if err != nil {
		// An unreachable index is a bad round, not a dead research.
		p.logger.Warn("index search failed", "research_id", id, "keyword", keyword, "error", err)
		return p.ledger.BumpKeyword(ctx, id, keyword, 0, 0)
	}

	analysed := len(resp.Results)
	relevantCount := 0

	if analysed > 0 {
		p.recorder.Emit(ctx, id, EventAnalysingResults, nil)

		selected, err := p.analyst.SelectResults(ctx, scope, resp.Results)
		if err != nil {
			return err
		}

		relevantCount, err = p.classifyAll(ctx, id, scope, keyword, selected)
		if err != nil {
			return err
		}
	}

	return p.ledger.BumpKeyword(ctx, id, keyword, analysed, relevantCount)
}

// classifyAll classifies the selected decisions with bounded parallelism and
// returns how many came out relevant. The ledger short-circuits decisions
// already classified within this research.
func (p *Pipeline) classifyAll(ctx context.Context, id string, scope agent.Scope, keyword string, fileNames []string) (int, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sem      = make(chan struct{}, p.cfg.AnalysisFanout)
		relevant int
		firstErr error
	)

	for _, fileName := range fileNames {
		wg.Add(1)
		sem <- struct{}{}
		go func(fileName string) {
			defer wg.Done()
			defer func() { <-sem }()

			isRelevant, err := p.classifyOne(ctx, id, scope, keyword, fileName)

			mu.Lock()
			defer mu.Unlock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if isRelevant {
				relevant++
			}
		}(fileName)
	}
	wg.Wait()

	return relevant, firstErr
}

func (p *Pipeline) classifyOne(ctx context.Context, id string, scope agent.Scope, keyword, fileName string) (bool, error) {
	memo, err := p.ledger.GetTrace(ctx, id, fileName)
	if err != nil {
		return false, err
	}
	if memo != nil {
		return memo.IsRelevant, nil
	}

	p.recorder.Emit(ctx, id, EventAnalysingDocument, map[string]any{
		"file_name": fileName,
	})

	trace := models.ResearchTrace{
		ResearchID:    id,
		SearchKeyword: keyword,
		FileName:      fileName,
	}

	doc, err := p.index.Fetch(ctx, fileName)
	if err != nil {
		// A decision we cannot fetch is memoized as non-relevant so the
		// research never stalls on it or retries it.
		p.logger.Warn("decision fetch failed", "research_id", id, "file_name", fileName, "error", err)
		trace.Metadata = fmt.Sprintf("Error: could not fetch %s", fileName)
		trace.Summary = "decision could not be retrieved from the index"
	} else {
		c, err := p.analyst.ClassifyDocument(ctx, scope, fileName, doc)
		if err != nil {
			return false, err
		}
		trace.IsRelevant = c.IsRelevant
		trace.Metadata = c.Metadata
		trace.Summary = c.Summary
		trace.RelevantParts = c.RelevantParts
		trace.LegalProvisions = c.LegalProvisions
	}

	// First writer wins; a concurrent duplicate yields the stored memo.
	stored, _, err := p.ledger.CreateTraceIfAbsent(ctx, trace)
	if err != nil {
		return false, err
	}
	return stored.IsRelevant, nil
}

// synthesize ends the research: a report when relevant decisions exist, a
// plain conclusion when the search came up empty.
func (p *Pipeline) synthesize(ctx context.Context, id string, scope agent.Scope) error {
	relevant, err := p.ledger.ListRelevantTraces(ctx, id)
	if err != nil {
		return err
	}

	if len(relevant) == 0 {
		result := "No relevant court decisions were found for this research. " +
			"Try rephrasing the problem or narrowing the legal question."
		return p.store.MarkCompleted(ctx, id, result)
	}

	p.recorder.Emit(ctx, id, EventWritingReport, nil)
	report, err := p.analyst.WriteReport(ctx, scope, relevant)
	if err != nil {
		return err
	}
	if err := p.store.SetReport(ctx, id, report); err != nil {
		return err
	}

	result := fmt.Sprintf("Research completed: %d relevant court decisions found.", len(relevant))
	return p.store.MarkCompleted(ctx, id, result)
}

// dropTried filters out keywords that already have a ledger entry, so a
// repetitive planner cannot burn turns re-searching the same ground.
func dropTried(keywords []string, history []models.Keyword) []string {
	tried := make(map[string]struct{}, len(history))
	for _, k := range history {
		tried[k.SearchKeyword] = struct{}{}
	}
	out := keywords[:0]
	for _, k := range keywords {
		if _, ok := tried[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}
