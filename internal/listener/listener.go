// Package listener provides a Postgres LISTEN/NOTIFY consumer that keeps
// cached store snapshots fresh. It holds a dedicated pgx connection (not
// from the pool) listening on the `stores_changed` channel, which the
// schema triggers fire on every write to stores or store_items.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	Channel          = "stores_changed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// ChangeEvent is the JSON payload from pg_notify('stores_changed', ...).
type ChangeEvent struct {
	Table string `json:"table"`
	Op    string `json:"op"`
}

// Start opens a dedicated connection and listens on the stores_changed
// channel, calling every invalidate func for each notification. It
// reconnects automatically on connection loss and invalidates once after
// each reconnect, since changes may have been missed while disconnected.
// Blocks until ctx is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, logger *slog.Logger, invalidate ...func()) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, logger, invalidate)
		if ctx.Err() != nil {
			logger.Info("Store listener stopped (context cancelled)")
			return
		}

		logger.Error("Store listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, logger *slog.Logger, invalidate []func()) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+Channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	logger.Info("Store listener connected", "channel", Channel)
	fire(invalidate)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		handle(notification.Payload, logger, invalidate)
	}
}

// handle applies one notification. A malformed payload still invalidates:
// the notification itself means something changed.
func handle(payload string, logger *slog.Logger, invalidate []func()) {
	var event ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		logger.Warn("Failed to parse store change event", "payload", payload, "error", err)
	} else {
		logger.Debug("Store change received", "table", event.Table, "op", event.Op)
	}
	fire(invalidate)
}

func fire(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
