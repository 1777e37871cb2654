// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/nearlist.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/albapepper/nearlist/internal/geo"
)

// --------------------------------------------------------------------------
// Position source modes
// --------------------------------------------------------------------------

const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// --------------------------------------------------------------------------
// Table names, matching schema.sql
// --------------------------------------------------------------------------

const (
	StoresTable     = "stores"
	StoreItemsTable = "store_items"
	CooldownsTable  = "cooldowns"
)

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

// Config is populated from environment variables.
type Config struct {
	// Database (optional; without it stores come from StoresFile)
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Position source
	PositionSource   string // http or mqtt
	DebugPosition    *geo.Coordinate
	DebugAccuracy    float64
	PositionInterval time.Duration
	PositionMaxAge   time.Duration // live samples older than this are rejected
	MQTTBroker       string
	MQTTClientID     string
	MQTTDeviceID     string

	// Stores
	StoresFile    string
	StoreCacheTTL time.Duration

	// Cooldowns (used when no database is configured)
	SQLitePath string

	// Delivery
	AMQPURL           string
	DeliveryQueueSize int

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		PositionSource:   strings.ToLower(envOr("POSITION_SOURCE", SourceHTTP)),
		DebugAccuracy:    envFloat("DEBUG_POSITION_ACCURACY", 10),
		PositionInterval: time.Duration(envInt("POSITION_INTERVAL_MS", 10000)) * time.Millisecond,
		PositionMaxAge:   time.Duration(envInt("POSITION_MAX_AGE_SECONDS", envInt("MQTT_MAX_AGE_SECONDS", 30))) * time.Second,
		MQTTBroker:       envOr("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:     envOr("MQTT_CLIENT_ID", "nearlist"),
		MQTTDeviceID:     envOr("MQTT_DEVICE_ID", "default"),

		StoresFile:    envOr("STORES_FILE", "locationLists.json"),
		StoreCacheTTL: time.Duration(envInt("STORE_CACHE_TTL_SECONDS", 60)) * time.Second,

		SQLitePath: envOr("SQLITE_PATH", "nearlist.db"),

		AMQPURL:           envOr("AMQP_URL", ""),
		DeliveryQueueSize: envInt("DELIVERY_QUEUE_SIZE", 32),

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}

	if v := os.Getenv("DEBUG_POSITION"); v != "" {
		c, err := parseCoordinate(v)
		if err != nil {
			return nil, fmt.Errorf("DEBUG_POSITION: %w", err)
		}
		cfg.DebugPosition = &c
		if cfg.IsProduction() {
			return nil, fmt.Errorf("DEBUG_POSITION is not allowed when ENVIRONMENT=production")
		}
	}

	switch cfg.PositionSource {
	case SourceHTTP, SourceMQTT:
	default:
		return nil, fmt.Errorf("POSITION_SOURCE must be %q or %q, got %q", SourceHTTP, SourceMQTT, cfg.PositionSource)
	}

	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasDatabase reports whether a Postgres URL was configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// parseCoordinate reads "lat,lng".
func parseCoordinate(s string) (geo.Coordinate, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("expected \"lat,lng\", got %q", s)
	}
	c := geo.Coordinate{
		Latitude:  parseFloat(lat),
		Longitude: parseFloat(lng),
	}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("invalid coordinate %q", s)
	}
	return c, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
