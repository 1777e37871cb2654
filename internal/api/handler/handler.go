// Package handler provides HTTP handlers for all API endpoints.
// Handlers talk to the engine and the store provider directly; there is no
// service layer.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/albapepper/nearlist/internal/api/respond"
	"github.com/albapepper/nearlist/internal/cache"
	"github.com/albapepper/nearlist/internal/config"
	"github.com/albapepper/nearlist/internal/engine"
	"github.com/albapepper/nearlist/internal/position"
	"github.com/albapepper/nearlist/internal/stores"
)

// HealthChecker is satisfied by *db.Pool.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DeliveryStats is satisfied by *notifications.Worker.
type DeliveryStats interface {
	Stats() map[string]int
}

// Deps are the handler dependencies. DB and Push may be nil: without a
// database /health/db reports it as disabled, and without a push source the
// server does not accept positions over HTTP.
type Deps struct {
	Config   *config.Config
	Cache    *cache.Cache
	Engine   *engine.Engine
	Stores   stores.Provider
	Push     *position.PushSource
	Delivery DeliveryStats
	DB       HealthChecker
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	cfg      *config.Config
	cache    *cache.Cache
	engine   *engine.Engine
	stores   stores.Provider
	push     *position.PushSource
	delivery DeliveryStats
	db       HealthChecker
	now      func() time.Time
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	return &Handler{
		cfg:      d.Config,
		cache:    d.Cache,
		engine:   d.Engine,
		stores:   d.Stores,
		push:     d.Push,
		delivery: d.Delivery,
		db:       d.DB,
		now:      time.Now,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status and the active position source.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":            "nearlist",
		"version":         "1.0.0",
		"status":          "running",
		"docs":            "/docs",
		"position_source": h.sourceName(),
	})
}

func (h *Handler) sourceName() string {
	if h.cfg.DebugPosition != nil {
		return "debug"
	}
	return h.cfg.PositionSource
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity. Reports "disabled" when the server runs without a database.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	ts := h.now().UTC().Format(time.RFC3339)
	if h.db == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"database":  "disabled",
			"timestamp": ts,
		})
		return
	}
	if err := h.db.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": ts,
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": ts,
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
