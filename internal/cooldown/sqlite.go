package cooldown

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/albapepper/nearlist/internal/notifications"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLite persists cooldowns in a local SQLite file.
type SQLite struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

// NewSQLite wraps an already-migrated database handle.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the last firing time for the pair.
func (s *SQLite) Get(ctx context.Context, storeID string, kind notifications.Kind) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		"SELECT fired_at FROM cooldowns WHERE key = ?",
		notifications.CooldownKey(storeID, kind),
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cooldown: %w", err)
	}
	return fromMillis(ms), true, nil
}

// Set upserts the last firing time for the pair.
func (s *SQLite) Set(ctx context.Context, storeID string, kind notifications.Kind, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cooldowns (key, fired_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET fired_at = excluded.fired_at`,
		notifications.CooldownKey(storeID, kind), toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// Prune deletes records fired before cutoff.
func (s *SQLite) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cooldowns WHERE fired_at < ?", toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune cooldowns: %w", err)
	}
	return res.RowsAffected()
}

// applyMigrations runs each embedded migration at most once, recording it in
// schema_migrations.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		var n int
		if err := db.QueryRow("SELECT COUNT(1) FROM schema_migrations WHERE name = ?", file).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if n > 0 {
			continue
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)",
			file, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	content = content[start+len(up):]
	if end := strings.Index(content, down); end != -1 {
		content = content[:end]
	}
	return content
}
