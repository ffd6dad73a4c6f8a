package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/carbonledger/internal/infrastructure/config"
	"github.com/iho/carbonledger/internal/infrastructure/metrics"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:          config.StoreMemory,
		LotIDPrefix:           "CC",
		OptimisticMaxAttempts: 3,
		ExpirySweepCron:       "@every 1h",
		IdempotencyTTL:        time.Hour,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := buildApp(context.Background(), cfg, zerolog.Nop(), metrics.NewWithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func issueRequest(key string) *http.Request {
	validUntil := time.Now().AddDate(2, 0, 0).UTC().Format(time.RFC3339)
	body := `{"owner":"alice","amount":"100","vintage_year":2024,"methodology":"forestry","standard":"verra_vcs","valid_until":"` + validUntil + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lots/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-ID", "registry")
	req.Header.Set("X-Caller-Role", "issuer")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestBuildApp_MemoryBackend(t *testing.T) {
	a := newTestApp(t, memoryConfig())

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, issueRequest(""))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"CC-2024-`)
}

func TestBuildApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.NotificationChannel = "carbonledger.events"

	a := newTestApp(t, cfg)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")

	first := httptest.NewRecorder()
	a.handler.ServeHTTP(first, issueRequest("issue-1"))
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	replay := httptest.NewRecorder()
	a.handler.ServeHTTP(replay, issueRequest("issue-1"))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("X-Idempotency-Replay"))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())
}

func TestBuildApp_AuthEnabledIgnoresCallerHeaders(t *testing.T) {
	cfg := memoryConfig()
	cfg.AuthEnabled = true
	cfg.JWTSecret = "secret"
	cfg.JWTExpiration = time.Minute

	a := newTestApp(t, cfg)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, issueRequest(""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuildApp_RejectsBadSchedule(t *testing.T) {
	cfg := memoryConfig()
	cfg.ExpirySweepCron = "not a schedule"

	_, err := buildApp(context.Background(), cfg, zerolog.Nop(), metrics.NewWithRegisterer(prometheus.NewRegistry()))
	assert.Error(t, err)
}

func TestBuildApp_UnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "sqlite"

	_, err := buildApp(context.Background(), cfg, zerolog.Nop(), metrics.NewWithRegisterer(prometheus.NewRegistry()))
	assert.Error(t, err)
}
