package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-explorer/internal/model"
	"github.com/sells-group/market-explorer/internal/store"
)

func newServerStore(t *testing.T) store.Store {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.SaveRoster(ctx, "Widgets", []model.Entity{
		{Segment: "Widgets", DisplayName: "Acme Corp", Identifier: "ACM", Origin: "fmp-screen"},
	}))
	require.NoError(t, st.AppendConflicts(ctx, "run-1", []model.Conflict{
		{RunID: "run-1", Segment: "Widgets", EntityName: "Acme Corp", Period: 2023,
			Metric: model.MetricRevenue, ExistingValue: 1000, IncomingValue: 1050,
			DetectedAt: time.Now().UTC()},
	}))
	require.NoError(t, st.AppendRunSummary(ctx, &model.RunSummary{
		ID: "run-1", Segment: "Widgets", EntityCount: 1, Status: model.RunStatusOK,
		StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC(),
	}))
	return st
}

func TestRouter_Health(t *testing.T) {
	srv := httptest.NewServer(newRouter(newServerStore(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_Roster(t *testing.T) {
	srv := httptest.NewServer(newRouter(newServerStore(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/segments/Widgets/roster")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var roster []model.Entity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&roster))
	require.Len(t, roster, 1)
	assert.Equal(t, "ACM", roster[0].Identifier)
}

func TestRouter_Conflicts(t *testing.T) {
	srv := httptest.NewServer(newRouter(newServerStore(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/segments/Widgets/conflicts?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var conflicts []model.Conflict
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conflicts))
	require.Len(t, conflicts, 1)
	assert.Equal(t, 1050.0, conflicts[0].IncomingValue)
}

func TestRouter_Runs(t *testing.T) {
	srv := httptest.NewServer(newRouter(newServerStore(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []model.RunSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestRouter_EmptySegment(t *testing.T) {
	srv := httptest.NewServer(newRouter(newServerStore(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/segments/Nothing/roster")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var roster []model.Entity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&roster))
	assert.Empty(t, roster)
}

func TestQueryLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/runs?limit=7", nil)
	assert.Equal(t, 7, queryLimit(req, 20))

	req = httptest.NewRequest(http.MethodGet, "/runs", nil)
	assert.Equal(t, 20, queryLimit(req, 20))

	req = httptest.NewRequest(http.MethodGet, "/runs?limit=-3", nil)
	assert.Equal(t, 20, queryLimit(req, 20))

	req = httptest.NewRequest(http.MethodGet, "/runs?limit=abc", nil)
	assert.Equal(t, 20, queryLimit(req, 20))
}
