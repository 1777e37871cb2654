// Package api assembles the HTTP surface: middleware, routes and docs.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/nearlist/internal/api/handler"
)

// NewRouter creates and configures the Chi router with all middleware and
// routes. stream serves the websocket endpoint; nil disables it.
func NewRouter(deps handler.Deps, stream http.Handler) *chi.Mux {
	cfg := deps.Config
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(deps)

	// --- Routes ---

	// Root, health and docs
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5)) // gzip

		r.Get("/", h.Root)

		r.Route("/health", func(r chi.Router) {
			r.Get("/", h.HealthCheck)
			r.Get("/db", h.HealthCheckDB)
			r.Get("/cache", h.HealthCheckCache)
		})

		r.Get("/docs/*", httpSwagger.Handler(
			httpSwagger.URL("/docs/doc.json"),
		))
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Websocket stream stays outside gzip; the upgrade needs the raw writer.
		if stream != nil {
			r.Get("/ws", stream.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))

			// Engine
			r.Post("/positions", h.PostPosition)
			r.Get("/zone", h.GetZone)

			// Stores
			r.Get("/stores", h.GetStores)
		})
	})

	return r
}
