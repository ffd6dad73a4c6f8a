package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/iho/carbonledger/internal/adapter/http/dto"
	"github.com/iho/carbonledger/internal/domain"
)

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/lots?limit=50", nil)
	if got, err := parseIntQuery(req, "limit", 10); err != nil || got != 50 {
		t.Fatalf("expected limit=50, got %d (%v)", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/lots?limit=invalid", nil)
	_, err := parseIntQuery(req, "limit", 10)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for a malformed value, got %v", err)
	}
	if got := mapDomainError(err); got != http.StatusBadRequest {
		t.Fatalf("expected malformed value to map to 400, got %d", got)
	}

	req.URL = &url.URL{RawQuery: ""}
	if got, err := parseIntQuery(req, "limit", 25); err != nil || got != 25 {
		t.Fatalf("expected default when missing, got %d (%v)", got, err)
	}
}

func TestParsePage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/lots?offset=20", nil)
	limit, offset, err := parsePage(req, 100)
	if err != nil || limit != 100 || offset != 20 {
		t.Fatalf("expected limit=100 offset=20, got %d %d (%v)", limit, offset, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/lots?limit=5&offset=x", nil)
	if _, _, err := parsePage(req, 100); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for offset, got %v", err)
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("%w: amount must be positive", domain.ErrValidation), http.StatusBadRequest},
		{"not authorized", domain.ErrNotAuthorized, http.StatusForbidden},
		{"lot not found", domain.LotError(domain.ErrLotNotFound, "CC-1", "", "no such lot"), http.StatusNotFound},
		{"bid not found", domain.BidError(domain.ErrBidNotFound, "CC-1", "b-1", domain.InvariantBid, "no such bid"), http.StatusNotFound},
		{"lot exists", domain.ErrLotExists, http.StatusConflict},
		{"state conflict", domain.ErrStateConflict, http.StatusConflict},
		{"version conflict", domain.ErrVersionConflict, http.StatusConflict},
		{"already verified", domain.ErrAlreadyVerified, http.StatusConflict},
		{"insufficient", domain.ErrInsufficientAmount, http.StatusUnprocessableEntity},
		{"retired", domain.ErrAlreadyRetired, http.StatusUnprocessableEntity},
		{"expired", domain.ErrExpired, http.StatusUnprocessableEntity},
		{"not verified", domain.ErrNotVerified, http.StatusUnprocessableEntity},
		{"not listed", domain.ErrNotListed, http.StatusUnprocessableEntity},
		{"kind wins over cause", domain.LotError(domain.ErrInsufficientAmount, "CC-1", domain.InvariantAvailableAmount, "nothing left").WithCause(domain.ErrNotAuthorized), http.StatusUnprocessableEntity},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := mapDomainError(tt.err); got != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}

	writeJSON(rr, http.StatusCreated, payload)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}

	var decoded map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if decoded["status"] != "ok" {
		t.Fatalf("expected payload to round-trip, got %+v", decoded)
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	writeError(rr, http.StatusBadRequest, "bad request", "detail")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error != "bad request" || resp.Message != "detail" {
		t.Fatalf("expected error message to propagate, got %+v", resp)
	}
}

func TestWriteDomainError(t *testing.T) {
	rr := httptest.NewRecorder()

	err := domain.BidError(domain.ErrStateConflict, "CC-2024-000001", "bid-7", domain.InvariantBid, "bid is %s", domain.BidStatusAccepted)
	writeDomainError(rr, "failed to accept bid", err)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error != "failed to accept bid" {
		t.Fatalf("unexpected error field: %q", resp.Error)
	}
	if resp.Kind != domain.ErrStateConflict.Error() {
		t.Fatalf("expected kind %q, got %q", domain.ErrStateConflict.Error(), resp.Kind)
	}
	if resp.LotID != "CC-2024-000001" || resp.BidID != "bid-7" || resp.Invariant != domain.InvariantBid {
		t.Fatalf("expected lot, bid and invariant to be reported, got %+v", resp)
	}
}

func TestRequireCaller(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/lots", nil)

	if _, ok := requireCaller(rr, req); ok {
		t.Fatal("expected missing caller to be rejected")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	want := domain.Caller{ID: "alice", Role: domain.RoleTrader}
	req = req.WithContext(domain.WithCaller(req.Context(), want))

	got, ok := requireCaller(rr, req)
	if !ok || got != want {
		t.Fatalf("expected caller %+v, got %+v (ok=%v)", want, got, ok)
	}
}
