package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/albapepper/nearlist/internal/cooldown"
	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/notifications"
	"github.com/albapepper/nearlist/internal/position"
	"github.com/albapepper/nearlist/internal/stores"
	"github.com/albapepper/nearlist/internal/zone"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var home = geo.Coordinate{Latitude: 52.52, Longitude: 13.405}

func offset(meters float64) geo.Coordinate {
	return geo.Coordinate{Latitude: home.Latitude + meters/(6371000*math.Pi/180), Longitude: home.Longitude}
}

func sample(c geo.Coordinate) zone.PositionSample {
	return zone.PositionSample{Coordinate: c, AccuracyMeters: 8}
}

type recordingQueue struct {
	mu   sync.Mutex
	cmds []notifications.Command
	full bool
}

func (q *recordingQueue) Enqueue(cmd notifications.Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.cmds = append(q.cmds, cmd)
	return true
}

func (q *recordingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.cmds)
}

type failingCooldowns struct{}

func (failingCooldowns) Get(context.Context, string, notifications.Kind) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("kv offline")
}

func (failingCooldowns) Set(context.Context, string, notifications.Kind, time.Time) error {
	return errors.New("kv offline")
}

var testStores = []zone.Store{
	{ID: "market", Name: "Market", Coordinate: home, TriggerRadiusMeters: 100, ItemCount: 2},
	{ID: "bakery", Name: "Bakery", Coordinate: offset(500), TriggerRadiusMeters: 60, ItemCount: 1},
}

func newEngine(cd notifications.CooldownStore, q Queue) *Engine {
	return New(notifications.NewDispatcher(cd, discardLogger), q, discardLogger)
}

func TestProcess_FullVisit(t *testing.T) {
	q := &recordingQueue{}
	e := newEngine(cooldown.NewMemory(), q)
	ctx := context.Background()

	steps := []struct {
		at       geo.Coordinate
		want     zone.EventKind
		wantCmd  bool
		cmdKind  notifications.Kind
		storeID  string
		inactive bool
	}{
		{at: offset(10), want: zone.Enter, wantCmd: true, cmdKind: notifications.Arrival, storeID: "market"},
		{at: offset(40), want: zone.Stay, storeID: "market"},
		{at: offset(300), want: zone.Leave, wantCmd: true, cmdKind: notifications.Departure, storeID: "market", inactive: true},
		{at: offset(300), want: zone.NoOp, inactive: true},
		{at: offset(10), want: zone.Enter, storeID: "market"}, // arrival still cooling down
	}

	for i, s := range steps {
		out := e.Process(ctx, sample(s.at), testStores)
		if out.Event.Kind != s.want {
			t.Fatalf("step %d: expected %s, got %s", i, s.want, out.Event.Kind)
		}
		if s.storeID != "" && out.Event.Store.ID != s.storeID {
			t.Fatalf("step %d: expected store %s, got %s", i, s.storeID, out.Event.Store.ID)
		}
		if (out.Command != nil) != s.wantCmd {
			t.Fatalf("step %d: command presence = %v, want %v", i, out.Command != nil, s.wantCmd)
		}
		if s.wantCmd && out.Command.Kind != s.cmdKind {
			t.Fatalf("step %d: expected %s command, got %s", i, s.cmdKind, out.Command.Kind)
		}
		if got := e.Status().State.Inactive(); got != s.inactive {
			t.Fatalf("step %d: inactive = %v, want %v", i, got, s.inactive)
		}
	}

	if q.len() != 2 {
		t.Fatalf("expected 2 queued commands, got %d", q.len())
	}
	st := e.Status()
	if st.Samples != 5 || st.Commands != 2 || st.Events["enter"] != 2 || st.Events["noop"] != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestProcess_CooldownFailureStillAdvancesState(t *testing.T) {
	q := &recordingQueue{}
	e := newEngine(failingCooldowns{}, q)

	out := e.Process(context.Background(), sample(home), testStores)
	if out.Event.Kind != zone.Enter {
		t.Fatalf("expected Enter, got %s", out.Event.Kind)
	}
	if out.Command != nil || !errors.Is(out.Err, notifications.ErrCooldownUnavailable) {
		t.Fatalf("expected fail-closed suppression, got %+v", out)
	}
	st := e.Status()
	if st.State.StoreID != "market" || st.CooldownErrs != 1 {
		t.Fatalf("state should advance despite cooldown failure: %+v", st)
	}
	if q.len() != 0 {
		t.Fatal("nothing should be queued")
	}
}

func TestProcess_FullQueueKeepsCooldownAndState(t *testing.T) {
	cd := cooldown.NewMemory()
	q := &recordingQueue{full: true}
	e := newEngine(cd, q)

	out := e.Process(context.Background(), sample(home), testStores)
	if out.Command == nil {
		t.Fatal("expected a command even if delivery drops it")
	}
	if _, ok, _ := cd.Get(context.Background(), "market", notifications.Arrival); !ok {
		t.Fatal("cooldown must stay recorded after a dropped delivery")
	}
	if st := e.Status(); st.Dropped != 1 || st.State.StoreID != "market" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestProcess_ObserversSeeTransitions(t *testing.T) {
	e := newEngine(cooldown.NewMemory(), &recordingQueue{})
	var kinds []zone.EventKind
	e.OnOutcome(func(o Outcome) { kinds = append(kinds, o.Event.Kind) })

	ctx := context.Background()
	e.Process(ctx, sample(offset(2000)), testStores) // noop, not observed
	e.Process(ctx, sample(home), testStores)
	e.Process(ctx, sample(home), testStores)

	if len(kinds) != 2 || kinds[0] != zone.Enter || kinds[1] != zone.Stay {
		t.Fatalf("unexpected observed kinds %v", kinds)
	}
}

type scriptedSource struct {
	updates []position.Update
}

func (s *scriptedSource) Stream(ctx context.Context) (<-chan position.Update, error) {
	ch := make(chan position.Update, len(s.updates))
	for _, u := range s.updates {
		ch <- u
	}
	close(ch)
	return ch, nil
}

type errProvider struct{}

func (errProvider) Stores(context.Context) ([]zone.Store, error) {
	return nil, errors.New("db down")
}

func TestRun_ProcessesStreamInOrder(t *testing.T) {
	q := &recordingQueue{}
	e := newEngine(cooldown.NewMemory(), q)
	src := &scriptedSource{updates: []position.Update{
		{Sample: sample(home)},
		{Err: position.ErrPositionUnavailable},
		{Sample: sample(offset(300))},
	}}

	if err := e.Run(context.Background(), src, stores.Static(testStores)); err != nil {
		t.Fatalf("run: %v", err)
	}

	st := e.Status()
	if st.Samples != 2 || st.Events["enter"] != 1 || st.Events["leave"] != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
	if !st.State.Inactive() {
		t.Fatalf("expected inactive, got %+v", st.State)
	}
	if st.PositionError != "" {
		t.Fatalf("a later sample should clear the position error, got %q", st.PositionError)
	}
}

func TestRun_PositionErrorKeepsState(t *testing.T) {
	e := newEngine(cooldown.NewMemory(), &recordingQueue{})
	src := &scriptedSource{updates: []position.Update{
		{Sample: sample(home)},
		{Err: position.ErrPositionUnavailable},
	}}

	if err := e.Run(context.Background(), src, stores.Static(testStores)); err != nil {
		t.Fatalf("run: %v", err)
	}
	st := e.Status()
	if st.State.StoreID != "market" {
		t.Fatalf("position error must not change zone state: %+v", st.State)
	}
	if st.PositionError == "" || st.PositionErrAt == nil {
		t.Fatalf("expected position error in status: %+v", st)
	}
}

func TestRun_ProviderErrorSkipsSample(t *testing.T) {
	e := newEngine(cooldown.NewMemory(), &recordingQueue{})
	src := &scriptedSource{updates: []position.Update{{Sample: sample(home)}}}

	if err := e.Run(context.Background(), src, errProvider{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if st := e.Status(); st.Samples != 0 {
		t.Fatalf("expected sample skipped, got %+v", st)
	}
}
