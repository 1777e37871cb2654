// Package simulate replays a recorded track through a fresh engine. The
// cooldown clock follows the sample timestamps, so a replay of a
// two-hour walk shows the same notifications the live engine would have
// produced.
package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/albapepper/nearlist/internal/engine"
	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/notifications"
	"github.com/albapepper/nearlist/internal/zone"
)

// Point is one track entry. Timestamp is unix milliseconds; when absent,
// Offset seconds from the replay start are used instead.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	Offset    float64 `json:"t,omitempty"`
}

// Track is an ordered list of points.
type Track []Point

// LoadTrack reads a JSON array of points.
func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	var t Track
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse track: %w", err)
	}
	return t, nil
}

// Samples converts the track to position samples, validating each point.
// Timestamps must not go backwards.
func (t Track) Samples(start time.Time) ([]zone.PositionSample, error) {
	out := make([]zone.PositionSample, 0, len(t))
	var prev time.Time
	for i, p := range t {
		c := geo.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
		if !c.Valid() {
			return nil, fmt.Errorf("point %d: invalid coordinate %s", i, c)
		}
		ts := start.Add(time.Duration(p.Offset * float64(time.Second)))
		if p.Timestamp > 0 {
			ts = time.UnixMilli(p.Timestamp).UTC()
		}
		if ts.Before(prev) {
			return nil, fmt.Errorf("point %d: timestamp goes backwards", i)
		}
		prev = ts
		out = append(out, zone.PositionSample{Coordinate: c, AccuracyMeters: p.Accuracy, Timestamp: ts})
	}
	return out, nil
}

// Step is the outcome of one replayed sample.
type Step struct {
	Index int
	engine.Outcome
}

// acceptAll stands in for delivery; commands come back in Step.Outcome.
type acceptAll struct{}

func (acceptAll) Enqueue(notifications.Command) bool { return true }

// Run replays samples against snapshot and returns every step, NoOps
// included. Cooldowns are read and written through cooldowns, so a
// persistent store carries state across runs.
func Run(ctx context.Context, samples []zone.PositionSample, snapshot []zone.Store, cooldowns notifications.CooldownStore, logger *slog.Logger) []Step {
	var current time.Time
	dispatcher := notifications.NewDispatcher(cooldowns, logger,
		notifications.WithClock(func() time.Time { return current }))
	eng := engine.New(dispatcher, acceptAll{}, logger)

	steps := make([]Step, 0, len(samples))
	for i, s := range samples {
		if ctx.Err() != nil {
			break
		}
		current = s.Timestamp
		steps = append(steps, Step{Index: i, Outcome: eng.Process(ctx, s, snapshot)})
	}
	return steps
}
