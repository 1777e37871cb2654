package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/albapepper/nearlist/internal/cooldown"
	"github.com/albapepper/nearlist/internal/notifications"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type failingPruner struct{ calls int }

func (f *failingPruner) Prune(context.Context, time.Time) (int64, error) {
	f.calls++
	return 0, errors.New("locked")
}

func TestPrune_KeepsRecordsInsideLongestCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	mem := cooldown.NewMemory()
	mem.Set(ctx, "a", notifications.Arrival, now.Add(-59*time.Minute))
	mem.Set(ctx, "b", notifications.Departure, now.Add(-61*time.Minute))

	prune(ctx, mem, DefaultConfig().PruneAfter, func() time.Time { return now }, discardLogger)

	if mem.Len() != 1 {
		t.Fatalf("expected 1 record left, got %d", mem.Len())
	}
	if _, ok, _ := mem.Get(ctx, "a", notifications.Arrival); !ok {
		t.Fatal("record still cooling down was pruned")
	}
}

func TestPrune_ErrorIsLoggedNotFatal(t *testing.T) {
	p := &failingPruner{}
	prune(context.Background(), p, time.Hour, time.Now, discardLogger)
	if p.calls != 1 {
		t.Fatalf("expected one attempt, got %d", p.calls)
	}
}

func TestDefaultConfig_PruneAfterCoversLongestCooldown(t *testing.T) {
	cfg := DefaultConfig()
	for _, k := range []notifications.Kind{notifications.Arrival, notifications.Departure} {
		if cfg.PruneAfter < k.Cooldown() {
			t.Fatalf("PruneAfter %s shorter than %s cooldown %s", cfg.PruneAfter, k, k.Cooldown())
		}
	}
}

func TestStart_RunsTasksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hits := make(chan struct{}, 8)
	cfg := Config{PruneInterval: 0, CatchUpInterval: 5 * time.Millisecond}

	done := make(chan struct{})
	go func() {
		defer close(done)
		Start(ctx, nil, []func(){func() {
			select {
			case hits <- struct{}{}:
			default:
			}
		}}, cfg, discardLogger)
	}()

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("catch-up never ran")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
