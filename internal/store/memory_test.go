package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomasbielik/precedent/internal/models"
)

func TestCreateAndGetResearch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r, err := m.CreateResearch(ctx, "find precedent on overtime pay", "guest")
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.StatusQueued, r.Status())
	assert.Empty(t, r.Events)
	assert.Nil(t, r.ProcessingStartedAt)

	got, err := m.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Query, got.Query)
}

func TestGetResearchNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.GetResearch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTerminalStateIsFinal(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r, err := m.CreateResearch(ctx, "q", "guest")
	require.NoError(t, err)

	require.NoError(t, m.MarkProcessingStarted(ctx, r.ID))
	require.NoError(t, m.MarkCompleted(ctx, r.ID, "the result"))

	// Later bookkeeping calls must not change the terminal state or
	// resurrect the active flag.
	require.NoError(t, m.MarkFailed(ctx, r.ID, "too late"))
	require.NoError(t, m.MarkProcessingStarted(ctx, r.ID))

	got, err := m.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, "the result", *got.Result)
	assert.Nil(t, got.Error, "at most one of result/error may be set")
	assert.False(t, got.IsActive)
	require.NotNil(t, got.ProcessingEndedAt)
	assert.False(t, got.ProcessingEndedAt.Before(*got.ProcessingStartedAt))
}

func TestMarkProcessingStartedIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r, err := m.CreateResearch(ctx, "q", "guest")
	require.NoError(t, err)

	require.NoError(t, m.MarkProcessingStarted(ctx, r.ID))
	first, err := m.GetResearch(ctx, r.ID)
	require.NoError(t, err)

	require.NoError(t, m.MarkProcessingStarted(ctx, r.ID))
	second, err := m.GetResearch(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ProcessingStartedAt, second.ProcessingStartedAt)
	assert.True(t, second.IsActive)
}

func TestAppendEventConcurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r, err := m.CreateResearch(ctx, "q", "guest")
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.AppendEvent(ctx, r.ID, models.Event{Type: "searching"})
		}()
	}
	wg.Wait()

	got, err := m.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, got.Events, n, "no event may be lost to a concurrent append")
}

func TestCreateTraceIfAbsentFirstWriterWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := models.ResearchTrace{
		ResearchID: "r1", SearchKeyword: "overtime", FileName: "case1.pdf",
		IsRelevant: true, Summary: "first",
	}
	stored, created, err := m.CreateTraceIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "first", stored.Summary)

	second := first
	second.Summary = "second"
	stored, created, err = m.CreateTraceIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "first", stored.Summary, "existing memo is authoritative")

	memo, err := m.GetTrace(ctx, "r1", "case1.pdf")
	require.NoError(t, err)
	require.NotNil(t, memo)
	assert.Equal(t, "first", memo.Summary)
}

func TestGetTraceAbsent(t *testing.T) {
	m := NewMemory()
	memo, err := m.GetTrace(context.Background(), "r1", "nope.pdf")
	require.NoError(t, err)
	assert.Nil(t, memo)
}

func TestBumpKeywordConcurrentSums(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		kept := i % 2 // half of the evaluations keep the item
		wg.Add(1)
		go func(kept int) {
			defer wg.Done()
			_ = m.BumpKeyword(ctx, "r1", "overtime", 1, kept)
		}(kept)
	}
	wg.Wait()

	keywords, err := m.ListKeywords(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, keywords, 1)
	assert.Equal(t, n, keywords[0].AnalysedResults)
	assert.Equal(t, n/2, keywords[0].RelevantResults)
}

func TestListResearchesPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := m.CreateResearch(ctx, "q", "guest")
		require.NoError(t, err)
	}

	page, total, err := m.ListResearches(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)

	page, _, err = m.ListResearches(ctx, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, _, err = m.ListResearches(ctx, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestDeleteResearch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	r, err := m.CreateResearch(ctx, "q", "guest")
	require.NoError(t, err)
	_, _, err = m.CreateTraceIfAbsent(ctx, models.ResearchTrace{ResearchID: r.ID, FileName: "a.pdf"})
	require.NoError(t, err)

	require.NoError(t, m.DeleteResearch(ctx, r.ID))
	_, err = m.GetResearch(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteResearch(ctx, r.ID), ErrNotFound)
}

func TestListPending(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := m.CreateResearch(ctx, "a", "guest")
	require.NoError(t, err)
	b, err := m.CreateResearch(ctx, "b", "guest")
	require.NoError(t, err)
	require.NoError(t, m.MarkProcessingStarted(ctx, a.ID))

	pending, err := m.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
}
