package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tomasbielik/precedent/internal/models"
	"github.com/tomasbielik/precedent/internal/queue"
	"github.com/tomasbielik/precedent/internal/store"
)

// Submit limits, enforced before anything is persisted.
const (
	maxQueryLength   = 4000
	DefaultPerPage   = 20
	MaxPerPage       = 100
	DefaultCreatedBy = "guest"
)

// ValidationError carries per-field messages for a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ResearchService handles intake and reads of research records.
type ResearchService struct {
	store    store.Store
	producer queue.Producer
	logger   *slog.Logger
}

// NewResearchService creates the intake service.
func NewResearchService(st store.Store, producer queue.Producer, logger *slog.Logger) *ResearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResearchService{store: st, producer: producer, logger: logger}
}

// Submit validates the query, persists the research and signals the worker
// pool. The record is durable before the signal goes out, so a lost signal
// leaves a pending research that startup catch-up will find, never a
// dangling signal for a research that does not exist.
func (s *ResearchService) Submit(ctx context.Context, query, createdBy string) (*models.Research, error) {
	query = strings.TrimSpace(query)
	if createdBy == "" {
		createdBy = DefaultCreatedBy
	}

	fields := map[string]string{}
	if query == "" {
		fields["query"] = "must not be empty"
	} else if len(query) > maxQueryLength {
		fields["query"] = fmt.Sprintf("must be at most %d characters", maxQueryLength)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	research, err := s.store.CreateResearch(ctx, query, createdBy)
	if err != nil {
		return nil, fmt.Errorf("create research: %w", err)
	}

	if err := s.producer.Enqueue(ctx, research.ID); err != nil {
		// The record exists; catch-up will pick it up even though the
		// signal was lost.
		s.logger.Error("enqueue work signal failed",
			"research_id", research.ID, "error", err)
	}

	s.logger.Info("research submitted",
		"research_id", research.ID, "created_by", createdBy)
	return research, nil
}

// Get returns one research by id.
func (s *ResearchService) Get(ctx context.Context, id string) (*models.Research, error) {
	return s.store.GetResearch(ctx, id)
}

// List returns one page of researches, newest first, plus the total count.
func (s *ResearchService) List(ctx context.Context, page, perPage int) ([]models.Research, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return s.store.ListResearches(ctx, page, perPage)
}

// Delete removes a research and its ledger entries.
func (s *ResearchService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteResearch(ctx, id); err != nil {
		return err
	}
	s.logger.Info("research deleted", "research_id", id)
	return nil
}
