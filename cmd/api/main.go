// Command api is the nearlist server: it runs the geofence engine against a
// position source and serves its state over HTTP.
//
// Usage:
//
//	nearlist-api
//	POSITION_SOURCE=mqtt MQTT_BROKER=tcp://broker:1883 nearlist-api
//	DEBUG_POSITION=40.7128,-74.0060 nearlist-api

// @title nearlist API
// @version 1.0.0
// @description Geofence engine for location-based shopping lists: push positions, inspect the active zone, list stores.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name nearlist
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/nearlist/internal/api"
	"github.com/albapepper/nearlist/internal/api/handler"
	"github.com/albapepper/nearlist/internal/api/ws"
	"github.com/albapepper/nearlist/internal/cache"
	"github.com/albapepper/nearlist/internal/config"
	"github.com/albapepper/nearlist/internal/cooldown"
	"github.com/albapepper/nearlist/internal/db"
	"github.com/albapepper/nearlist/internal/engine"
	"github.com/albapepper/nearlist/internal/listener"
	"github.com/albapepper/nearlist/internal/maintenance"
	"github.com/albapepper/nearlist/internal/notifications"
	"github.com/albapepper/nearlist/internal/notifications/amqpsend"
	"github.com/albapepper/nearlist/internal/position"
	"github.com/albapepper/nearlist/internal/stores"

	_ "github.com/albapepper/nearlist/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Database is optional; without it stores come from a file and
	// cooldowns from SQLite.
	var (
		pool      *db.Pool
		cooldowns interface {
			notifications.CooldownStore
			maintenance.Pruner
		}
		base stores.Provider
	)
	if cfg.HasDatabase() {
		logger.Info("Connecting to database...")
		pool, err = db.New(ctx, cfg)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("Database connected",
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns)

		cooldowns = cooldown.NewPostgres(pool.Pool)
		base = stores.NewPostgres(pool.Pool)
	} else {
		sqlite, err := cooldown.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Error("Failed to open cooldown store", "path", cfg.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer sqlite.Close()
		cooldowns = sqlite
		base = stores.NewFile(cfg.StoresFile)
		logger.Info("Running without database", "stores_file", cfg.StoresFile, "cooldowns", cfg.SQLitePath)
	}
	storeSet := stores.NewCached(base, cfg.StoreCacheTTL)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Websocket stream
	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	// Delivery: log + websocket, plus RabbitMQ when configured
	senders := notifications.MultiSender{notifications.NewLogSender(logger), hub}
	if cfg.AMQPURL != "" {
		pub, conn, err := amqpsend.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Error("Failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		defer pub.Close()
		senders = append(senders, pub)
		logger.Info("RabbitMQ delivery enabled", "exchange", amqpsend.ExchangeName)
	}
	worker := notifications.NewWorker(senders, cfg.DeliveryQueueSize, logger)
	go worker.Run(ctx)

	// Engine
	eng := engine.New(notifications.NewDispatcher(cooldowns, logger), worker, logger)
	eng.OnOutcome(hub.OnOutcome)

	src, push, closeSource, err := openSource(cfg, logger)
	if err != nil {
		logger.Error("Failed to open position source", "error", err)
		os.Exit(1)
	}
	defer closeSource()

	go func() {
		if err := eng.Run(ctx, src, storeSet); err != nil {
			logger.Error("Engine failed", "error", err)
			cancel()
		}
	}()

	invalidate := []func(){
		storeSet.Invalidate,
		func() { appCache.Delete(handler.StoresCacheKey) },
	}

	// Start LISTEN/NOTIFY consumer so store edits reach the engine
	if pool != nil {
		go listener.Start(ctx, cfg.DatabaseURL, logger, invalidate...)
	}

	// Periodic cooldown pruning and store catch-up
	go maintenance.Start(ctx, cooldowns, invalidate, maintenance.DefaultConfig(), logger)

	// Create router
	deps := handler.Deps{
		Config:   cfg,
		Cache:    appCache,
		Engine:   eng,
		Stores:   storeSet,
		Push:     push,
		Delivery: worker,
	}
	if pool != nil {
		deps.DB = pool
	}
	router := api.NewRouter(deps, hub)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting nearlist API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}

// openSource picks the position source. A debug position overrides the
// configured mode. push is non-nil only in http mode.
func openSource(cfg *config.Config, logger *slog.Logger) (src position.Source, push *position.PushSource, closeFn func(), err error) {
	closeFn = func() {}

	switch {
	case cfg.DebugPosition != nil:
		fixed := position.NewFixedSource(*cfg.DebugPosition, cfg.PositionInterval)
		fixed.Accuracy = cfg.DebugAccuracy
		logger.Info("Using debug position", "coordinate", cfg.DebugPosition.String(), "interval", fixed.Interval)
		return fixed, nil, closeFn, nil

	case cfg.PositionSource == config.SourceMQTT:
		client, err := position.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return nil, nil, nil, err
		}
		mq := position.NewMQTTSource(client, cfg.MQTTDeviceID, cfg.PositionMaxAge, logger)
		logger.Info("Using MQTT position source", "broker", cfg.MQTTBroker, "topic", mq.Topic())
		return mq, nil, func() { client.Disconnect(250) }, nil

	default:
		push = position.NewPushSource(cfg.PositionMaxAge)
		logger.Info("Using HTTP position source", "endpoint", "/api/v1/positions")
		return push, push, closeFn, nil
	}
}
