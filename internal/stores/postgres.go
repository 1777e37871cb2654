package stores

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/nearlist/internal/zone"
)

// Postgres reads the store set through the stores_snapshot prepared
// statement registered by internal/db.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed provider.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Stores returns every store with its unchecked item count, in creation
// order.
func (p *Postgres) Stores(ctx context.Context) ([]zone.Store, error) {
	rows, err := p.pool.Query(ctx, "stores_snapshot")
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	var out []zone.Store
	for rows.Next() {
		var s zone.Store
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Address,
			&s.Coordinate.Latitude, &s.Coordinate.Longitude,
			&s.TriggerRadiusMeters, &s.ItemCount,
		); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
