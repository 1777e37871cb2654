// Package db provides a pgxpool-based connection pool with prepared statement
// registration, schema bootstrap and health checking.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/nearlist/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool. The schema is applied
// before statements are prepared so a fresh database works on first start.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if err := EnsureSchema(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// EnsureSchema applies schema.sql on a short-lived connection. Every
// statement in it is idempotent.
func EnsureSchema(ctx context.Context, dbURL string) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect for schema: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// statements lists every prepared statement the API, engine and CLI use.
var statements = map[string]string{
	// Health
	"health_check": "SELECT 1",

	// Cooldowns (keyed arrived_<id> / departed_<id>, fired_at in unix ms)
	"cooldown_get": "SELECT fired_at FROM " + config.CooldownsTable + " WHERE key = $1",
	"cooldown_set": "INSERT INTO " + config.CooldownsTable + " (key, fired_at) VALUES ($1, $2) " +
		"ON CONFLICT (key) DO UPDATE SET fired_at = EXCLUDED.fired_at",
	"cooldown_prune": "DELETE FROM " + config.CooldownsTable + " WHERE fired_at < $1",

	// Store snapshot with unchecked item counts
	"stores_snapshot": `SELECT s.id, s.name, COALESCE(s.address, ''), s.lat, s.lng, s.trigger_radius_m,
		COUNT(i.id) FILTER (WHERE NOT i.checked)::int
		FROM ` + config.StoresTable + ` s
		LEFT JOIN ` + config.StoreItemsTable + ` i ON i.store_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at, s.id`,
}

// registerPreparedStatements registers all statements on a new connection.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
