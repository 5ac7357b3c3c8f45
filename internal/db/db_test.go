//go:build integration

// Package db contains integration tests for the SurrealDB-backed store.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tomasbielik/precedent/internal/models"
	"github.com/tomasbielik/precedent/internal/store"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func TestResearchLifecycle(t *testing.T) {
	ctx := context.Background()

	r, err := testDB.CreateResearch(ctx, "overtime pay precedent", "guest")
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)
	assert.Equal(t, models.StatusQueued, r.Status())
	defer func() { _ = testDB.DeleteResearch(ctx, r.ID) }()

	require.NoError(t, testDB.MarkProcessingStarted(ctx, r.ID))
	got, err := testDB.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status())
	assert.True(t, got.IsActive)

	// Re-delivered signal must not reset the pickup time.
	started := got.ProcessingStartedAt
	require.NoError(t, testDB.MarkProcessingStarted(ctx, r.ID))
	got, err = testDB.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, *started, *got.ProcessingStartedAt, time.Millisecond)

	require.NoError(t, testDB.MarkCompleted(ctx, r.ID, "the outcome"))
	got, err = testDB.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status())
	assert.False(t, got.IsActive)
	require.NotNil(t, got.ProcessingEndedAt)

	// Terminal state is final.
	require.NoError(t, testDB.MarkFailed(ctx, r.ID, "too late"))
	require.NoError(t, testDB.MarkProcessingStarted(ctx, r.ID))
	got, err = testDB.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status())
	assert.Nil(t, got.Error)
	assert.False(t, got.IsActive)
}

func TestGetResearchNotFound(t *testing.T) {
	ctx := context.Background()

	_, err := testDB.GetResearch(ctx, "no-such-research")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, testDB.MarkCompleted(ctx, "no-such-research", "x"), store.ErrNotFound)
	assert.ErrorIs(t, testDB.DeleteResearch(ctx, "no-such-research"), store.ErrNotFound)
}

func TestAppendEventOrdering(t *testing.T) {
	ctx := context.Background()

	r, err := testDB.CreateResearch(ctx, "event ordering", "guest")
	require.NoError(t, err)
	defer func() { _ = testDB.DeleteResearch(ctx, r.ID) }()

	types := []string{"started", "scoping", "scoped", "ended"}
	for _, typ := range types {
		require.NoError(t, testDB.AppendEvent(ctx, r.ID, models.Event{
			Type: typ,
			At:   time.Now().UTC(),
		}))
	}

	got, err := testDB.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got.Events, len(types))
	for i, typ := range types {
		assert.Equal(t, typ, got.Events[i].Type)
	}
}

func TestSetScopeAndReport(t *testing.T) {
	ctx := context.Background()

	r, err := testDB.CreateResearch(ctx, "scope test", "guest")
	require.NoError(t, err)
	defer func() { _ = testDB.DeleteResearch(ctx, r.ID) }()

	require.NoError(t, testDB.SetScope(ctx, r.ID, "the problem", "the question"))
	require.NoError(t, testDB.SetReport(ctx, r.ID, "# Report"))

	got, err := testDB.GetResearch(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProblemDescription)
	assert.Equal(t, "the problem", *got.ProblemDescription)
	require.NotNil(t, got.Question)
	assert.Equal(t, "the question", *got.Question)
	require.NotNil(t, got.Report)
	assert.Equal(t, "# Report", *got.Report)
}

func TestListPendingExcludesStarted(t *testing.T) {
	ctx := context.Background()

	a, err := testDB.CreateResearch(ctx, "pending a", "guest")
	require.NoError(t, err)
	defer func() { _ = testDB.DeleteResearch(ctx, a.ID) }()
	b, err := testDB.CreateResearch(ctx, "pending b", "guest")
	require.NoError(t, err)
	defer func() { _ = testDB.DeleteResearch(ctx, b.ID) }()

	require.NoError(t, testDB.MarkProcessingStarted(ctx, a.ID))

	pending, err := testDB.ListPending(ctx)
	require.NoError(t, err)

	ids := make(map[string]bool, len(pending))
	for _, p := range pending {
		ids[p.ID] = true
	}
	assert.False(t, ids[a.ID], "started research must not be pending")
	assert.True(t, ids[b.ID])
}

func TestTraceMemoFirstWriterWins(t *testing.T) {
	ctx := context.Background()

	r, err := testDB.CreateResearch(ctx, "memo test", "guest")
	require.NoError(t, err)
	defer func() { _ = testDB.DeleteResearch(ctx, r.ID) }()

	first := models.ResearchTrace{
		ResearchID:    r.ID,
		SearchKeyword: "nadcasy",
		FileName:      "decision-42.pdf",
		IsRelevant:    true,
		Summary:       "first writer",
	}
	stored, created, err := testDB.CreateTraceIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "first writer", stored.Summary)

	second := first
	second.Summary = "second writer"
	stored, created, err = testDB.CreateTraceIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created, "unique index must reject the second memo")
	assert.Equal(t, "first writer", stored.Summary)

	memo, err := testDB.GetTrace(ctx, r.ID, "decision-42.pdf")
	require.NoError(t, err)
	require.NotNil(t, memo)
	assert.Equal(t, "first writer", memo.Summary)

	relevant, err := testDB.ListRelevantTraces(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, relevant, 1)
	assert.Equal(t, "decision-42.pdf", relevant[0].FileName)
}

func TestGetTraceAbsent(t *testing.T) {
	ctx := context.Background()

	memo, err := testDB.GetTrace(ctx, "nonexistent", "nothing.pdf")
	require.NoError(t, err)
	assert.Nil(t, memo)
}

func TestBumpKeywordCounters(t *testing.T) {
	ctx := context.Background()

	r, err := testDB.CreateResearch(ctx, "keyword test", "guest")
	require.NoError(t, err)
	defer func() { _ = testDB.DeleteResearch(ctx, r.ID) }()

	require.NoError(t, testDB.BumpKeyword(ctx, r.ID, "nadcasy", 1, 1))
	require.NoError(t, testDB.BumpKeyword(ctx, r.ID, "nadcasy", 1, 0))
	require.NoError(t, testDB.BumpKeyword(ctx, r.ID, "mzda", 1, 0))

	keywords, err := testDB.ListKeywords(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, keywords, 2)

	byKeyword := make(map[string]models.Keyword, len(keywords))
	for _, k := range keywords {
		byKeyword[k.SearchKeyword] = k
	}
	assert.Equal(t, 2, byKeyword["nadcasy"].AnalysedResults)
	assert.Equal(t, 1, byKeyword["nadcasy"].RelevantResults)
	assert.Equal(t, 1, byKeyword["mzda"].AnalysedResults)
}

func TestDeleteResearchRemovesLedger(t *testing.T) {
	ctx := context.Background()

	r, err := testDB.CreateResearch(ctx, "cascade test", "guest")
	require.NoError(t, err)

	_, _, err = testDB.CreateTraceIfAbsent(ctx, models.ResearchTrace{
		ResearchID: r.ID,
		FileName:   "gone.pdf",
	})
	require.NoError(t, err)
	require.NoError(t, testDB.BumpKeyword(ctx, r.ID, "gone", 1, 0))

	require.NoError(t, testDB.DeleteResearch(ctx, r.ID))

	memo, err := testDB.GetTrace(ctx, r.ID, "gone.pdf")
	require.NoError(t, err)
	assert.Nil(t, memo)

	keywords, err := testDB.ListKeywords(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, keywords)
}
