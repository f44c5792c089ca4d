/**
 * @description
 * This file sets up the HTTP router for the deposit-service using the Chi
 * router. It defines the API routes and applies middleware.
 *
 * Route groups:
 * - /webhooks: unauthenticated but signature-verified, rate limited per IP.
 * - /deposits (writes): internal, guarded by the shared API key.
 * - /deposits (reads): admin only, guarded by JWT validation.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight, idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the Chi router.
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Amhaztech0/HazPay-sub000/internal/app"
)

// RouterConfig carries the wiring the router needs beyond the handlers.
type RouterConfig struct {
	InternalAPIKey     string
	AdminJWKSURL       string
	CORSAllowedOrigins string
	RateLimiter        *app.RedisWebhookRateLimiter
	WebhookRatePerMin  int
}

// NewRouter creates and configures a new Chi router with all service routes.
func NewRouter(handlers *DepositHandlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Standard middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	allowedOrigins := []string{"*"}
	if cfg.CORSAllowedOrigins != "" {
		allowedOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
		for i := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.HealthCheckHandler)

	// Payscribe webhook. The only auth here is the payload signature, so the
	// per-IP rate limit sits in front of it.
	r.Group(func(r chi.Router) {
		r.Use(WebhookRateLimitMiddleware(cfg.RateLimiter, cfg.WebhookRatePerMin))
		r.Post("/webhooks/payscribe", handlers.WebhookHandler)
	})

	r.Route("/deposits", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheckHandler)

		// Internal server-to-server endpoints
		r.Group(func(r chi.Router) {
			r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
			r.Post("/virtual-accounts", handlers.CreateVirtualAccountHandler)
		})

		// Admin read endpoints
		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminJWKSURL))
			r.Get("/", handlers.ListDepositsHandler)
			r.Get("/virtual-accounts", handlers.ListVirtualAccountsHandler)
		})
	})

	return r
}
