// Package position supplies position samples to the engine.
//
// A Source is chosen once by configuration: a live MQTT device feed, samples
// pushed over HTTP, or a fixed debug override. The engine consumes all of
// them through the same stream and cannot tell them apart.
package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/zone"
)

const (
	// AcquisitionTimeout is how long a live source waits for a sample before
	// reporting the position as unavailable.
	AcquisitionTimeout = 5 * time.Second
	// DefaultInterval is the cadence of the fixed debug source.
	DefaultInterval = 10 * time.Second
	// DefaultMaxAge is how old a live sample may be before it counts as cached.
	DefaultMaxAge = 30 * time.Second
	// MaxClockSkew is how far ahead of the local clock a sample may be stamped.
	MaxClockSkew = 5 * time.Second
)

var (
	// ErrPositionUnavailable reports that no usable sample could be obtained
	// (permission denied, hardware timeout, source offline).
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrStaleSample rejects a live sample stamped too far in the past or
	// the future.
	ErrStaleSample = errors.New("stale sample")
)

// checkFresh applies the live-source timestamp rule shared by MQTT and push.
func checkFresh(ts, now time.Time, maxAge time.Duration) error {
	age := now.Sub(ts)
	if age > maxAge {
		return fmt.Errorf("%w: %s old", ErrStaleSample, age.Round(time.Second))
	}
	if -age > MaxClockSkew {
		return fmt.Errorf("%w: %s ahead of clock", ErrStaleSample, (-age).Round(time.Second))
	}
	return nil
}

// Update is one item of a position stream: either a sample or an error.
type Update struct {
	Sample zone.PositionSample
	Err    error
}

// Source produces a stream of updates until ctx is cancelled, after which
// the channel is closed.
type Source interface {
	Stream(ctx context.Context) (<-chan Update, error)
}

// FixedSource is the debug override: it reports the same coordinate on
// every tick. A zero Interval means DefaultInterval.
type FixedSource struct {
	Coordinate geo.Coordinate
	Accuracy   float64
	Interval   time.Duration
	now        func() time.Time
}

// NewFixedSource creates a debug source that emits c immediately and then
// every interval.
func NewFixedSource(c geo.Coordinate, interval time.Duration) *FixedSource {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &FixedSource{Coordinate: c, Interval: interval, now: time.Now}
}

// Stream implements Source.
func (s *FixedSource) Stream(ctx context.Context) (<-chan Update, error) {
	if !s.Coordinate.Valid() {
		return nil, errors.New("fixed position: invalid coordinate " + s.Coordinate.String())
	}
	interval, now := s.Interval, s.now
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	out := make(chan Update, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			sample := zone.PositionSample{Coordinate: s.Coordinate, AccuracyMeters: s.Accuracy, Timestamp: now()}
			select {
			case out <- Update{Sample: sample}:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
