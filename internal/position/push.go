package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/albapepper/nearlist/internal/zone"
)

// ErrNotStreaming is returned by Push when nobody consumes the source.
var ErrNotStreaming = errors.New("push source is not streaming")

// PushSource receives samples from a caller (the HTTP API) and forwards them
// to the engine in arrival order. Like the MQTT source it refuses samples
// older than maxAge.
type PushSource struct {
	mu     sync.Mutex
	out    chan Update
	ctx    context.Context
	maxAge time.Duration
	now    func() time.Time
}

// NewPushSource creates an idle push source; a zero maxAge uses the default.
func NewPushSource(maxAge time.Duration) *PushSource {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &PushSource{maxAge: maxAge, now: time.Now}
}

// Stream implements Source. Only one stream may be active at a time.
func (s *PushSource) Stream(ctx context.Context) (<-chan Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		return nil, errors.New("push source already streaming")
	}
	out := make(chan Update, 16)
	s.out, s.ctx = out, ctx

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		close(out)
		s.out, s.ctx = nil, nil
	}()
	return out, nil
}

// Push forwards a sample. A zero timestamp is stamped with the current time;
// otherwise it must pass the same freshness rule as MQTT samples
// (ErrStaleSample). It blocks while the consumer is busy and returns when ctx
// or the stream is cancelled.
func (s *PushSource) Push(ctx context.Context, sample zone.PositionSample) error {
	if !sample.Coordinate.Valid() {
		return fmt.Errorf("invalid coordinate %s", sample.Coordinate)
	}
	now := s.now()
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	} else if err := checkFresh(sample.Timestamp, now, s.maxAge); err != nil {
		return err
	}
	return s.send(ctx, Update{Sample: sample})
}

// Fail reports a client-side positioning error (e.g. permission denied).
func (s *PushSource) Fail(ctx context.Context, reason string) error {
	return s.send(ctx, Update{Err: fmt.Errorf("%w: %s", ErrPositionUnavailable, reason)})
}

func (s *PushSource) send(ctx context.Context, u Update) error {
	// Holding mu while sending keeps the stream goroutine from closing the
	// channel underneath us; the buffered channel keeps the hold short.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return ErrNotStreaming
	}
	select {
	case s.out <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrNotStreaming
	}
}
