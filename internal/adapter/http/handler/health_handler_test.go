package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(nil)

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks map[string]Pinger
		want   int
	}{
		{"no dependencies", nil, http.StatusOK},
		{"nil checks skipped", map[string]Pinger{"postgres": nil, "redis": nil}, http.StatusOK},
		{"all healthy", map[string]Pinger{"postgres": ok, "redis": ok}, http.StatusOK},
		{"redis down", map[string]Pinger{"postgres": ok, "redis": down}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checks).Readiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
