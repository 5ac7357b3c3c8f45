package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomasbielik/precedent/internal/bus"
	"github.com/tomasbielik/precedent/internal/gateway"
	"github.com/tomasbielik/precedent/internal/metrics"
	"github.com/tomasbielik/precedent/internal/queue"
	"github.com/tomasbielik/precedent/internal/service"
	"github.com/tomasbielik/precedent/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	q := queue.NewLocalQueue(64, nil)
	research := service.NewResearchService(st, q, nil)
	ws := gateway.NewHandler(gateway.NewRegistry(bus.NewLocalBus(nil), nil), st, nil)
	return New(Config{}, research, ws, metrics.NewCollector(), nil), st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitResearch(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/researches",
		map[string]string{"query": "unpaid overtime"},
		map[string]string{"X-User-ID": "alice"})

	require.Equal(t, http.StatusCreated, rec.Code)

	var payload researchPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload.ID)
	assert.Equal(t, "unpaid overtime", payload.Query)
	assert.Equal(t, "alice", payload.CreatedBy)
	assert.Equal(t, "queued", payload.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestSubmitResearchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/researches",
		map[string]string{"query": "   "}, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "validation_failed", payload.Error.Code)
	assert.Contains(t, payload.Error.Fields, "query")
}

func TestSubmitResearchBadJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/researches", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetResearch(t *testing.T) {
	srv, _ := newTestServer(t)

	created := doJSON(t, srv.Handler(), http.MethodPost, "/api/researches",
		map[string]string{"query": "q"}, nil)
	require.Equal(t, http.StatusCreated, created.Code)

	var payload researchPayload
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &payload))

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/researches/"+payload.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got researchPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, payload.ID, got.ID)
}

func TestGetResearchNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/researches/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "not_found", payload.Error.Code)
}

func TestListResearchesPagination(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 5; i++ {
		rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/researches",
			map[string]string{"query": "q"}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/researches?page=2&per_page=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Data, 2)
	assert.Equal(t, 2, payload.Meta.CurrentPage)
	assert.Equal(t, 3, payload.Meta.LastPage)
	assert.Equal(t, 5, payload.Meta.Total)
}

func TestDeleteResearch(t *testing.T) {
	srv, _ := newTestServer(t)

	created := doJSON(t, srv.Handler(), http.MethodPost, "/api/researches",
		map[string]string{"query": "q"}, nil)
	var payload researchPayload
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &payload))

	rec := doJSON(t, srv.Handler(), http.MethodDelete, "/api/researches/"+payload.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/api/researches/"+payload.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/stats", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitKicksIn(t *testing.T) {
	st := store.NewMemory()
	q := queue.NewLocalQueue(64, nil)
	research := service.NewResearchService(st, q, nil)
	ws := gateway.NewHandler(gateway.NewRegistry(bus.NewLocalBus(nil), nil), st, nil)
	srv := New(Config{RateLimitRPS: 1, RateLimitBurst: 2}, research, ws, metrics.NewCollector(), nil)

	limited := false
	for i := 0; i < 10; i++ {
		rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil, nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "rate limiter never engaged")
}
