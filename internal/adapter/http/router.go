package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/carbonledger/internal/adapter/http/handler"
	"github.com/iho/carbonledger/internal/adapter/http/middleware"
	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/infrastructure/auth"
	"github.com/iho/carbonledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	LotHandler    *handler.LotHandler
	MarketHandler *handler.MarketHandler
	AdminHandler  *handler.AdminHandler
	HealthHandler *handler.HealthHandler

	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter

	// JWTManager verifies Bearer tokens; nil disables token auth.
	JWTManager *auth.JWTManager
	// TrustCallerHeaders accepts X-Caller-ID/X-Caller-Role as the identity.
	TrustCallerHeaders bool

	// MetricsHandler serves /metrics; defaults to the global prometheus registry.
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Metrics)
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.JWTManager, cfg.TrustCallerHeaders))
		r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotency := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL, cfg.Logger)
			r.Use(idempotency.Wrap)
		}

		// Lots
		r.Route("/lots", func(r chi.Router) {
			r.Post("/", cfg.LotHandler.Issue)
			r.Get("/", cfg.LotHandler.ListByOwner)
			r.Get("/expiring", cfg.LotHandler.Expiring)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.LotHandler.Get)
				r.Post("/verify", cfg.LotHandler.Verify)
				r.Post("/reject", cfg.LotHandler.Reject)
				r.Post("/transfers", cfg.LotHandler.Transfer)
				r.Post("/retire", cfg.LotHandler.Retire)
				r.Get("/conservation", cfg.LotHandler.Conservation)
				r.Get("/events", cfg.LotHandler.Events)

				// Marketplace
				r.Post("/listing", cfg.MarketHandler.List)
				r.Delete("/listing", cfg.MarketHandler.Delist)
				r.Post("/bids", cfg.MarketHandler.PlaceBid)
				r.Post("/bids/{bidID}/accept", cfg.MarketHandler.AcceptBid)
				r.Post("/bids/{bidID}/reject", cfg.MarketHandler.RejectBid)
				r.Post("/bids/{bidID}/withdraw", cfg.MarketHandler.WithdrawBid)
			})
		})

		r.Route("/market", func(r chi.Router) {
			r.Get("/listings", cfg.MarketHandler.Listings)
			r.Get("/stats", cfg.MarketHandler.Stats)
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Post("/sweep", cfg.AdminHandler.Sweep)
		})
	})

	return r
}
