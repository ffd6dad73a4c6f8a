package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/iho/carbonledger/internal/adapter/http/dto"
	"github.com/iho/carbonledger/internal/adapter/repository/memory"
	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/infrastructure/metrics"
	"github.com/iho/carbonledger/internal/infrastructure/retry"
	"github.com/iho/carbonledger/internal/usecase"
)

var (
	testIssuer   = domain.Caller{ID: "registry", Role: domain.RoleIssuer}
	testVerifier = domain.Caller{ID: "verifier-1", Role: domain.RoleVerifier}
	testAdmin    = domain.Caller{ID: "ops", Role: domain.RoleAdmin}
	testAlice    = domain.Caller{ID: "alice", Role: domain.RoleTrader}
	testBob      = domain.Caller{ID: "bob", Role: domain.RoleTrader}
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type sequentialIDs struct {
	n atomic.Int64
}

func (g *sequentialIDs) Generate() string {
	return fmt.Sprintf("id-%06d", g.n.Add(1))
}

type apiFixture struct {
	store  *memory.Store
	svc    *usecase.LedgerService
	router chi.Router
}

// newAPIFixture serves the handlers over a real ledger on the in-memory store.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := memory.NewStore()
	svc := usecase.NewLedgerService(usecase.Dependencies{
		TxManager: store.TxManager(),
		Lots:      store.Lots(),
		Outbox:    store.Outbox(),
		Audit:     store.Audit(),
		IDGen:     &sequentialIDs{},
		Retrier: retry.NewRetrier(retry.Config{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			MaxElapsedTime:  time.Second,
		}, nil, zerolog.Nop()),
		Metrics: metrics.NewWithRegisterer(prometheus.NewRegistry()),
		Logger:  zerolog.Nop(),
		Clock:   func() time.Time { return testNow },
	}, usecase.Options{})
	t.Cleanup(svc.Wait)

	lots := NewLotHandler(svc, store.Outbox())
	market := NewMarketHandler(svc)
	admin := NewAdminHandler(svc)

	r := chi.NewRouter()
	r.Route("/lots", func(r chi.Router) {
		r.Post("/", lots.Issue)
		r.Get("/", lots.ListByOwner)
		r.Get("/expiring", lots.Expiring)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", lots.Get)
			r.Post("/verify", lots.Verify)
			r.Post("/reject", lots.Reject)
			r.Post("/transfers", lots.Transfer)
			r.Post("/retire", lots.Retire)
			r.Get("/conservation", lots.Conservation)
			r.Get("/events", lots.Events)
			r.Post("/listing", market.List)
			r.Delete("/listing", market.Delist)
			r.Post("/bids", market.PlaceBid)
			r.Post("/bids/{bidID}/accept", market.AcceptBid)
			r.Post("/bids/{bidID}/reject", market.RejectBid)
			r.Post("/bids/{bidID}/withdraw", market.WithdrawBid)
		})
	})
	r.Get("/market/listings", market.Listings)
	r.Get("/market/stats", market.Stats)
	r.Post("/admin/sweep", admin.Sweep)

	return &apiFixture{store: store, svc: svc, router: r}
}

// do sends body as JSON. A nil caller sends the request unauthenticated.
func (f *apiFixture) do(t *testing.T, method, path string, caller *domain.Caller, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req = req.WithContext(domain.WithCaller(req.Context(), *caller))
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// issueVerified issues amount to owner over the API and verifies it.
func (f *apiFixture) issueVerified(t *testing.T, owner, amount string) *dto.LotResponse {
	t.Helper()

	issued := f.issue(t, owner, amount)
	rec := f.do(t, http.MethodPost, "/lots/"+issued.ID+"/verify", &testVerifier, map[string]any{
		"verification_body": "Verra",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[dto.LotResponse](t, rec)
}

// issue issues a pending lot over the API.
func (f *apiFixture) issue(t *testing.T, owner, amount string) *dto.LotResponse {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/lots", &testIssuer, map[string]any{
		"owner":        owner,
		"amount":       amount,
		"vintage_year": 2024,
		"methodology":  "forestry",
		"standard":     "verra_vcs",
		"project_id":   "proj-1",
		"valid_until":  testNow.AddDate(2, 0, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[dto.LotResponse](t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) *T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return &v
}
