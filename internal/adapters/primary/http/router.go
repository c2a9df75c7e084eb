package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	mw "github.com/lorrc/testit-reports/internal/adapters/primary/http/middleware"
)

// RouterConfig collects everything the HTTP surface is built from. Nil
// limiters, metrics and handlers are left out of the router.
type RouterConfig struct {
	Logger         *slog.Logger
	Tokens         mw.TokenValidator
	AllowedOrigins []string

	GeneralLimiter *mw.RateLimiter
	TriggerLimiter *mw.RateLimiter

	Metrics        func(http.Handler) http.Handler
	MetricsHandler http.Handler

	Health     *HealthHandler
	Statistics *StatisticsHandler
	Collection *CollectionHandler
	WebSocket  http.Handler
}

// NewRouter builds the service's HTTP router.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader, TestITTokenHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.GeneralLimiter != nil {
		r.Use(cfg.GeneralLimiter.Middleware)
	}

	// Health and scrape endpoints stay outside /api/v1
	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (Authentication is handled inside the handler)
		if cfg.WebSocket != nil {
			r.Method(http.MethodGet, "/ws", cfg.WebSocket)
		}

		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(cfg.Tokens))
			r.Route("/statistics", func(r chi.Router) {
				if cfg.Statistics != nil {
					cfg.Statistics.RegisterRoutes(r)
				}
				if cfg.Collection != nil {
					r.Group(func(r chi.Router) {
						if cfg.TriggerLimiter != nil {
							r.Use(cfg.TriggerLimiter.Middleware)
						}
						cfg.Collection.RegisterRoutes(r)
					})
				}
			})
		})
	})

	return r
}
