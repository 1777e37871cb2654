package cooldown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/nearlist/internal/notifications"
)

// Postgres persists cooldowns in the shared database. It relies on the
// cooldown_get / cooldown_set / cooldown_prune statements prepared by internal/db.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Get returns the last firing time for the pair.
func (p *Postgres) Get(ctx context.Context, storeID string, kind notifications.Kind) (time.Time, bool, error) {
	var ms int64
	err := p.pool.QueryRow(ctx, "cooldown_get", notifications.CooldownKey(storeID, kind)).Scan(&ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown: %w", err)
	}
	return fromMillis(ms), true, nil
}

// Set upserts the last firing time for the pair.
func (p *Postgres) Set(ctx context.Context, storeID string, kind notifications.Kind, at time.Time) error {
	if _, err := p.pool.Exec(ctx, "cooldown_set", notifications.CooldownKey(storeID, kind), toMillis(at)); err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// Prune deletes records fired before cutoff.
func (p *Postgres) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, "cooldown_prune", toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune cooldowns: %w", err)
	}
	return tag.RowsAffected(), nil
}
