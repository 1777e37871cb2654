package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/nearlist/internal/config"
)

// ImportResult tracks counts and errors from an import.
type ImportResult struct {
	StoresUpserted int
	ItemsWritten   int
	Errors         []string
}

// AddErrorf records a formatted error message.
func (r *ImportResult) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the import.
func (r *ImportResult) Summary() string {
	return fmt.Sprintf("stores=%d items=%d errors=%d", r.StoresUpserted, r.ItemsWritten, len(r.Errors))
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Import loads an export document into the stores tables in one
// transaction. Each store's item list is replaced. Invalid stores are
// skipped and reported; the rest are written. The stores_changed trigger
// fires once on commit.
func Import(ctx context.Context, db TxBeginner, data []byte) (ImportResult, error) {
	var doc exportFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return ImportResult{}, fmt.Errorf("parse stores: %w", err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := importStores(ctx, tx, doc, time.Now())
	if err != nil {
		return result, err
	}
	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit import: %w", err)
	}
	return result, nil
}

func importStores(ctx context.Context, ex execer, doc exportFile, now time.Time) (ImportResult, error) {
	var result ImportResult
	for i, s := range doc.Stores {
		c, err := s.validate(i)
		if err != nil {
			result.AddErrorf("%v", err)
			continue
		}

		created := now
		if t, err := time.Parse(time.RFC3339, s.CreatedAt); err == nil {
			created = t
		}

		_, err = ex.Exec(ctx, `
			INSERT INTO `+config.StoresTable+` (id, name, address, lat, lng, trigger_radius_m, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				address = EXCLUDED.address,
				lat = EXCLUDED.lat,
				lng = EXCLUDED.lng,
				trigger_radius_m = EXCLUDED.trigger_radius_m`,
			s.ID, s.Name, nilEmpty(s.Address), c.Latitude, c.Longitude, s.TriggerRadius, created,
		)
		if err != nil {
			return result, fmt.Errorf("upsert store %s: %w", s.ID, err)
		}
		result.StoresUpserted++

		if _, err := ex.Exec(ctx, `DELETE FROM `+config.StoreItemsTable+` WHERE store_id = $1`, s.ID); err != nil {
			return result, fmt.Errorf("clear items for %s: %w", s.ID, err)
		}
		for j, item := range s.Items {
			id := item.ID
			if id == "" {
				id = fmt.Sprintf("%s-%d", s.ID, j)
			}
			_, err := ex.Exec(ctx, `
				INSERT INTO `+config.StoreItemsTable+` (id, store_id, text, checked)
				VALUES ($1,$2,$3,$4)
				ON CONFLICT (id) DO UPDATE SET store_id = EXCLUDED.store_id, text = EXCLUDED.text, checked = EXCLUDED.checked`,
				id, s.ID, item.Text, item.Checked,
			)
			if err != nil {
				return result, fmt.Errorf("insert item %s: %w", id, err)
			}
			result.ItemsWritten++
		}
	}
	return result, nil
}

// nilEmpty returns nil for empty strings (maps to SQL NULL).
func nilEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
