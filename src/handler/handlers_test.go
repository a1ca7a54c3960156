package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakoutexecutor/src/model"
	"breakoutexecutor/src/repository"
)

type mockPositionSearcher struct {
	positions []model.Position
	err       error
	options   repository.PositionSearchOptions
}

func (m *mockPositionSearcher) Search(ctx context.Context, options repository.PositionSearchOptions) ([]model.Position, error) {
	m.options = options
	return m.positions, m.err
}

type mockPairLister struct {
	pairs []model.PairConfig
	err   error
}

func (m *mockPairLister) ListAll(ctx context.Context) ([]model.PairConfig, error) {
	return m.pairs, m.err
}

type mockStatus struct {
	status model.EngineStatus
	err    error
}

func (m *mockStatus) Status(ctx context.Context) (model.EngineStatus, error) {
	return m.status, m.err
}

func TestSearchPositionsHandler(t *testing.T) {
	repo := &mockPositionSearcher{positions: []model.Position{{ID: 3, Symbol: "ETH/USDT", Status: model.PositionStatusClosed}}}

	req := httptest.NewRequest(http.MethodGet, "/api/positions?symbol=ETH/USDT&status=closed&pageSize=10", nil)
	rr := httptest.NewRecorder()
	SearchPositionsHandler(repo).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, repo.options.Status)
	assert.Equal(t, model.PositionStatusClosed, *repo.options.Status)
	assert.Equal(t, "ETH/USDT", *repo.options.Symbol)
	assert.Equal(t, 10, repo.options.Limit)

	var body []model.Position
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, uint(3), body[0].ID)

	req = httptest.NewRequest(http.MethodGet, "/api/positions?status=flat", nil)
	rr = httptest.NewRecorder()
	SearchPositionsHandler(repo).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rr = httptest.NewRecorder()
	SearchPositionsHandler(&mockPositionSearcher{err: assert.AnError}).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestListPairsHandler(t *testing.T) {
	repo := &mockPairLister{pairs: []model.PairConfig{{Symbol: "BTC/USDT", Enabled: true, Leverage: 10, TakeProfitPct: 2}}}

	rr := httptest.NewRecorder()
	ListPairsHandler(repo).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/pairs", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"tp_percent":2`)

	rr = httptest.NewRecorder()
	ListPairsHandler(&mockPairLister{err: assert.AnError}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/pairs", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestStatusHandler(t *testing.T) {
	provider := &mockStatus{status: model.EngineStatus{Exchange: "phemex", Running: true, OpenOrders: 2}}

	rr := httptest.NewRecorder()
	StatusHandler(provider).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body model.EngineStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, provider.status, body)

	rr = httptest.NewRecorder()
	StatusHandler(&mockStatus{err: assert.AnError}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
