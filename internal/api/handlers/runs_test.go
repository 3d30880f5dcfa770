package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminalledger/commission-recon/internal/api/dto"
	"github.com/terminalledger/commission-recon/internal/api/handlers"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

func seedRun(t *testing.T, repo *storage.MockRepository, dryRun bool) int64 {
	t.Helper()
	id, err := repo.StartRun(&storage.ReconRun{
		StartedAt: time.Now(),
		BatchSize: 100,
		DryRun:    dryRun,
	})
	require.NoError(t, err)
	require.NoError(t, repo.CompleteRun(id, storage.RunStatusCompleted, 10, 8, 2, `{"summary":{}}`))
	return id
}

func TestRunsHandler_List(t *testing.T) {
	t.Run("returns empty list when no runs", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.RunListResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Empty(t, response.Runs)
		assert.Equal(t, 0, response.Count)
	})

	t.Run("returns runs newest first without reports", func(t *testing.T) {
		repo := storage.NewMockRepository()
		first := seedRun(t, repo, false)
		second := seedRun(t, repo, true)

		handler := handlers.NewRunsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.RunListResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		require.Equal(t, 2, response.Count)
		assert.Equal(t, second, response.Runs[0].ID)
		assert.Equal(t, first, response.Runs[1].ID)
		assert.True(t, response.Runs[0].DryRun)
		assert.Nil(t, response.Runs[0].Report)
	})

	t.Run("respects limit parameter", func(t *testing.T) {
		repo := storage.NewMockRepository()
		for i := 0; i < 5; i++ {
			seedRun(t, repo, false)
		}

		handler := handlers.NewRunsHandler(repo)

		req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		var response dto.RunListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, 2, response.Count)
	})
}

func TestRunsHandler_Get(t *testing.T) {
	t.Run("returns run with report", func(t *testing.T) {
		repo := storage.NewMockRepository()
		id := seedRun(t, repo, false)

		handler := handlers.NewRunsHandler(repo)

		req := newRequestWithURLParam(http.MethodGet, "/api/runs/1", "id", "1")
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.RunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, id, response.ID)
		assert.Equal(t, storage.RunStatusCompleted, response.Status)
		assert.Equal(t, 8, response.Matched)
		assert.NotNil(t, response.Report)
	})

	t.Run("returns 404 for unknown run", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo)

		req := newRequestWithURLParam(http.MethodGet, "/api/runs/99", "id", "99")
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns 400 for invalid id", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo)

		req := newRequestWithURLParam(http.MethodGet, "/api/runs/abc", "id", "abc")
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRunsHandler_GetReport(t *testing.T) {
	t.Run("returns raw report JSON", func(t *testing.T) {
		repo := storage.NewMockRepository()
		seedRun(t, repo, false)

		handler := handlers.NewRunsHandler(repo)

		req := newRequestWithURLParam(http.MethodGet, "/api/runs/1/report", "id", "1")
		rec := httptest.NewRecorder()

		handler.GetReport(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"summary":{}}`, rec.Body.String())
	})

	t.Run("returns 404 when the run has no report", func(t *testing.T) {
		repo := storage.NewMockRepository()
		_, err := repo.StartRun(&storage.ReconRun{StartedAt: time.Now(), BatchSize: 100})
		require.NoError(t, err)

		handler := handlers.NewRunsHandler(repo)

		req := newRequestWithURLParam(http.MethodGet, "/api/runs/1/report", "id", "1")
		rec := httptest.NewRecorder()

		handler.GetReport(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns 404 for unknown run", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo)

		req := newRequestWithURLParam(http.MethodGet, "/api/runs/99/report", "id", "99")
		rec := httptest.NewRecorder()

		handler.GetReport(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// newRequestWithURLParam builds a request carrying a chi URL parameter.
func newRequestWithURLParam(method, target, key, value string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
