package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/nearlist/internal/zone"
)

// Dispatcher applies per-kind cooldowns to zone events and builds at most
// one Command per event.
type Dispatcher struct {
	// mu makes the cooldown read-then-write atomic, so two samples processed
	// back to back cannot both pass the same cooldown check.
	mu        sync.Mutex
	cooldowns CooldownStore
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source used for cooldown checks.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher backed by the given cooldown store.
func NewDispatcher(cooldowns CooldownStore, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cooldowns: cooldowns,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch returns the command to deliver for ev, or nil when nothing should
// be sent. A non-nil error means the cooldown store failed; the command is
// suppressed and the error wraps ErrCooldownUnavailable.
func (d *Dispatcher) Dispatch(ctx context.Context, ev zone.Event) (*Command, error) {
	switch ev.Kind {
	case zone.Enter:
		title, body := arrivalMessage(ev.Store, ev.DistanceMeters)
		return d.fire(ctx, ev.Store, Arrival, title, body, arrivalTag(ev.Store.ID))

	case zone.Leave:
		candidates := eligibleCandidates(ev.Store, ev.Candidates)
		if len(candidates) == 0 {
			d.logger.Debug("Departure skipped, no nearby stores with items", "store_id", ev.Store.ID)
			return nil, nil
		}
		title, body := departureMessage(ev.Store, candidates)
		return d.fire(ctx, ev.Store, Departure, title, body, departureTag(ev.Store.ID))

	default:
		return nil, nil
	}
}

func (d *Dispatcher) fire(ctx context.Context, store zone.Store, kind Kind, title, body, tag string) (*Command, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	last, ok, err := d.cooldowns.Get(ctx, store.ID, kind)
	if err != nil {
		d.logger.Warn("Cooldown read failed, suppressing notification",
			"store_id", store.ID, "kind", kind, "error", err)
		return nil, fmt.Errorf("%w: get %s: %w", ErrCooldownUnavailable, CooldownKey(store.ID, kind), err)
	}
	if ok {
		if age := now.Sub(last); age < kind.Cooldown() {
			d.logger.Info("Notification skipped by cooldown",
				"store_id", store.ID, "kind", kind,
				"age", age.Round(time.Second), "cooldown", kind.Cooldown())
			return nil, nil
		}
	}

	if err := d.cooldowns.Set(ctx, store.ID, kind, now); err != nil {
		d.logger.Warn("Cooldown write failed, suppressing notification",
			"store_id", store.ID, "kind", kind, "error", err)
		return nil, fmt.Errorf("%w: set %s: %w", ErrCooldownUnavailable, CooldownKey(store.ID, kind), err)
	}

	return &Command{
		Kind:      kind,
		Title:     title,
		Body:      body,
		Tag:       tag,
		StoreID:   store.ID,
		CreatedAt: now,
	}, nil
}

// --------------------------------------------------------------------------
// Delivery worker
// --------------------------------------------------------------------------

// Worker delivers queued commands in the background. Enqueue never blocks;
// each command gets a single delivery attempt.
type Worker struct {
	queue  chan Command
	sender Sender
	logger *slog.Logger

	mu     sync.Mutex
	sent   int
	failed int
	drops  int
}

// NewWorker creates a delivery worker with a queue of the given size.
func NewWorker(sender Sender, size int, logger *slog.Logger) *Worker {
	if size < 1 {
		size = defaultQueueSize
	}
	return &Worker{
		queue:  make(chan Command, size),
		sender: sender,
		logger: logger,
	}
}

// Enqueue hands cmd to the worker. It returns false when the queue is full
// and the command was dropped.
func (w *Worker) Enqueue(cmd Command) bool {
	select {
	case w.queue <- cmd:
		return true
	default:
		w.mu.Lock()
		w.drops++
		w.mu.Unlock()
		w.logger.Warn("Delivery queue full, dropping notification",
			"store_id", cmd.StoreID, "kind", cmd.Kind, "tag", cmd.Tag)
		return false
	}
}

// Run sends queued commands until ctx is cancelled. Intended to be called
// with `go`.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Notification delivery worker started", "queue", cap(w.queue))
	for {
		select {
		case cmd := <-w.queue:
			w.deliver(ctx, cmd)
		case <-ctx.Done():
			w.logger.Info("Notification delivery worker stopped")
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, cmd Command) {
	err := w.sender.Send(ctx, cmd)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.failed++
		w.logger.Warn("send failed", "store_id", cmd.StoreID, "kind", cmd.Kind, "tag", cmd.Tag, "error", err)
		return
	}
	w.sent++
}

// Stats returns delivery counters.
func (w *Worker) Stats() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]int{
		"sent":    w.sent,
		"failed":  w.failed,
		"dropped": w.drops,
		"queued":  len(w.queue),
	}
}
