/**
 * @description
 * This file sets up the HTTP router for the payout-service using the Chi
 * router. It defines all API routes, mounts standard middleware for logging
 * and panic recovery, and groups routes by the credential they require:
 * authenticated users, admins, or internal services.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: Lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the admin dashboard origin.
 */

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDeps bundles everything the router needs to wire its routes.
type RouterDeps struct {
	Handlers       *PayoutHandlers
	JWKSURL        string
	AllowedOrigins string
	InternalAPIKey string
}

// NewRouter creates and configures the service's HTTP router.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := []string{"*"}
	if deps.AllowedOrigins != "" {
		origins = strings.Split(deps.AllowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-Api-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/payouts", func(r chi.Router) {
		// Internal endpoints called by other services or the scheduler.
		r.Group(func(r chi.Router) {
			r.Use(RequireInternalKey(deps.InternalAPIKey))
			r.Post("/earnings/calculate", deps.Handlers.CalculateEarningsHandler)
		})

		// Authenticated user endpoints.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(deps.JWKSURL))

			r.Post("/accounts", deps.Handlers.CreateAccountHandler)
			r.Get("/accounts", deps.Handlers.ListAccountsHandler)
			r.Get("/summary", deps.Handlers.GetSummaryHandler)
			r.Post("/transactions", deps.Handlers.CreatePayoutHandler)
			r.Get("/transactions", deps.Handlers.ListPayoutsHandler)
			r.Get("/transactions/{payoutID}", deps.Handlers.GetPayoutHandler)
			r.Post("/transactions/{payoutID}/disputes", deps.Handlers.OpenDisputeHandler)

			// Admin-only endpoints.
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)

				r.Get("/settings", deps.Handlers.GetSettingsHandler)
				r.Put("/settings", deps.Handlers.UpdateSettingsHandler)
				r.Post("/accounts/{accountID}/verify", deps.Handlers.VerifyAccountHandler)
				r.Post("/transactions/{payoutID}/status", deps.Handlers.UpdatePayoutStatusHandler)
				r.Post("/disputes/{disputeID}/resolve", deps.Handlers.ResolveDisputeHandler)
			})
		})
	})

	return r
}
