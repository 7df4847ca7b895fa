package main

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenfeed/hftorch/internal/api/middleware"
	"github.com/lumenfeed/hftorch/internal/config"
	"github.com/lumenfeed/hftorch/internal/monitoring"
	"github.com/lumenfeed/hftorch/internal/orchestrator"
)

func testServer(t *testing.T) *http.Server {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.DefaultHFTConfig()
	cfg.Strategy.QuoteRefreshIntervalMS = 20
	cfg.Monitoring.MetricsPublishIntervalMS = 20

	hub := monitoring.NewHub(logger, nil, "hft.dashboard")
	o, err := orchestrator.New(cfg, defaultSymbols, defaultBasePrices, logger, rand.New(rand.NewSource(1)), hub)
	require.NoError(t, err)

	sec := middleware.New(logger, 600)
	dashCache := cache.New(250*time.Millisecond, 500*time.Millisecond)

	return newHTTPServer(logger, o, hub, sec, dashCache)
}

func TestHealthEndpointReportsHealthy(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpointReportsConfiguredIdentity(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NY5")
}

func TestOrderBookEndpointReturnsNotFoundForUnknownSymbol(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orderbook/ZZZZ", nil)
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShockEndpointRejectsMissingBody(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/shock", nil)
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointExposesPrometheusFormat(t *testing.T) {
	srv := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
