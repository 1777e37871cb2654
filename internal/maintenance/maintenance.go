// Package maintenance runs periodic background tasks as Go tickers.
package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes cooldown records fired before cutoff. Implemented by every
// cooldown backend.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	PruneInterval   time.Duration // Drop cooldown records past every cooldown
	PruneAfter      time.Duration // Age beyond which a record can no longer suppress anything
	CatchUpInterval time.Duration // Refresh store snapshots in case a NOTIFY was missed
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		PruneInterval:   30 * time.Minute,
		PruneAfter:      time.Hour,
		CatchUpInterval: 15 * time.Minute,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, pruner Pruner, invalidate []func(), cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"prune", cfg.PruneInterval,
		"catchup", cfg.CatchUpInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.PruneInterval > 0 && pruner != nil {
		t := time.NewTicker(cfg.PruneInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { prune(ctx, pruner, cfg.PruneAfter, time.Now, logger) })
	}

	if cfg.CatchUpInterval > 0 && len(invalidate) > 0 {
		t := time.NewTicker(cfg.CatchUpInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { catchUp(invalidate, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// prune removes cooldown records older than after. after must be at least
// the longest cooldown.
func prune(ctx context.Context, pruner Pruner, after time.Duration, now func() time.Time, logger *slog.Logger) {
	n, err := pruner.Prune(ctx, now().Add(-after))
	if err != nil {
		logger.Warn("Prune: failed to delete expired cooldowns", "error", err)
		return
	}
	if n > 0 {
		logger.Info("Prune: deleted expired cooldowns", "count", n)
	}
}

// catchUp drops cached store snapshots so the next sample reloads them.
func catchUp(invalidate []func(), logger *slog.Logger) {
	for _, fn := range invalidate {
		fn()
	}
	logger.Debug("Catch-up: store snapshots invalidated")
}
