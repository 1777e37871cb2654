// Package engine wires the geofence pipeline together:
//
//	position source → resolve → detect transition → dispatch → delivery queue
//
// One Engine owns one zone state. Samples are processed one at a time in
// arrival order; the zone state always advances before a notification is
// attempted, so cooldown or delivery failures never alter it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/nearlist/internal/notifications"
	"github.com/albapepper/nearlist/internal/position"
	"github.com/albapepper/nearlist/internal/stores"
	"github.com/albapepper/nearlist/internal/zone"
)

// Queue accepts commands for asynchronous delivery without blocking.
type Queue interface {
	Enqueue(cmd notifications.Command) bool
}

// Outcome is the result of processing one sample.
type Outcome struct {
	Sample  zone.PositionSample    `json:"sample"`
	Event   zone.Event             `json:"event"`
	Command *notifications.Command `json:"command,omitempty"`
	Err     error                  `json:"-"`
}

// Status is a point-in-time view of the engine for health and debug output.
type Status struct {
	State         zone.State           `json:"state"`
	ActiveStore   *zone.Store          `json:"active_store,omitempty"`
	LastSample    *zone.PositionSample `json:"last_sample,omitempty"`
	PositionError string               `json:"position_error,omitempty"`
	PositionErrAt *time.Time           `json:"position_error_at,omitempty"`
	Samples       int                  `json:"samples"`
	Events        map[string]int       `json:"events"`
	Commands      int                  `json:"commands"`
	Dropped       int                  `json:"dropped"`
	CooldownErrs  int                  `json:"cooldown_errors"`
}

// Engine processes position samples against store snapshots.
type Engine struct {
	mu         sync.Mutex
	detector   *zone.Detector
	dispatcher *notifications.Dispatcher
	queue      Queue
	logger     *slog.Logger
	observers  []func(Outcome)

	lastSample   *zone.PositionSample
	posErr       error
	posErrAt     time.Time
	samples      int
	events       map[zone.EventKind]int
	commands     int
	dropped      int
	cooldownErrs int
}

// New creates an engine in the inactive state.
func New(dispatcher *notifications.Dispatcher, queue Queue, logger *slog.Logger) *Engine {
	return &Engine{
		detector:   zone.NewDetector(),
		dispatcher: dispatcher,
		queue:      queue,
		logger:     logger,
		events:     make(map[zone.EventKind]int),
	}
}

// OnOutcome registers fn to be called for every non-NoOp outcome. Observers
// run while the engine lock is held and must not block.
func (e *Engine) OnOutcome(fn func(Outcome)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Process handles one sample against the given store snapshot.
func (e *Engine) Process(ctx context.Context, sample zone.PositionSample, snapshot []zone.Store) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.samples++
	e.lastSample = &sample
	e.posErr = nil

	var resolved *zone.Match
	if m, ok := zone.Resolve(sample, snapshot); ok {
		resolved = &m
	}
	ev := e.detector.Observe(resolved, sample.Coordinate, snapshot)
	e.events[ev.Kind]++

	out := Outcome{Sample: sample, Event: ev}
	if ev.Kind == zone.NoOp {
		return out
	}
	e.logger.Info("Zone transition",
		"event", ev.Kind, "store_id", ev.Store.ID, "store", ev.Store.Name,
		"distance_m", int(ev.DistanceMeters), "candidates", len(ev.Candidates))

	cmd, err := e.dispatcher.Dispatch(ctx, ev)
	switch {
	case err != nil:
		e.cooldownErrs++
		out.Err = err
	case cmd != nil:
		out.Command = cmd
		e.commands++
		if !e.queue.Enqueue(*cmd) {
			e.dropped++
		}
	}

	for _, fn := range e.observers {
		fn(out)
	}
	return out
}

// Run consumes src until ctx is cancelled or the stream ends. Each sample is
// resolved against a fresh snapshot from provider. Position errors are
// recorded in Status and leave the zone state untouched.
func (e *Engine) Run(ctx context.Context, src position.Source, provider stores.Provider) error {
	updates, err := src.Stream(ctx)
	if err != nil {
		return fmt.Errorf("start position stream: %w", err)
	}
	e.logger.Info("Engine started")

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				e.logger.Info("Engine stopped (position stream closed)")
				return nil
			}
			e.handle(ctx, u, provider)
		case <-ctx.Done():
			e.logger.Info("Engine stopped")
			return nil
		}
	}
}

func (e *Engine) handle(ctx context.Context, u position.Update, provider stores.Provider) {
	if u.Err != nil {
		e.recordPositionError(u.Err)
		return
	}

	snapshot, err := provider.Stores(ctx)
	if err != nil {
		e.logger.Warn("Store snapshot unavailable, skipping sample", "error", err)
		return
	}
	e.Process(ctx, u.Sample, snapshot)
}

func (e *Engine) recordPositionError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Log only when the status changes to keep a dead source from flooding.
	if e.posErr == nil || e.posErr.Error() != err.Error() {
		level := slog.LevelWarn
		if !errors.Is(err, position.ErrPositionUnavailable) {
			level = slog.LevelError
		}
		e.logger.Log(context.Background(), level, "Position unavailable", "error", err)
	}
	e.posErr = err
	e.posErrAt = time.Now()
}

// Status returns a snapshot of the engine state and counters.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:        e.detector.State(),
		Samples:      e.samples,
		Events:       make(map[string]int, len(e.events)),
		Commands:     e.commands,
		Dropped:      e.dropped,
		CooldownErrs: e.cooldownErrs,
	}
	if s, ok := e.detector.Active(); ok {
		st.ActiveStore = &s
	}
	if e.lastSample != nil {
		sample := *e.lastSample
		st.LastSample = &sample
	}
	if e.posErr != nil {
		st.PositionError = e.posErr.Error()
		at := e.posErrAt
		st.PositionErrAt = &at
	}
	for k, n := range e.events {
		st.Events[k.String()] = n
	}
	return st
}
