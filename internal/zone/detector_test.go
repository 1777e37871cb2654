package zone

import (
	"testing"

	"github.com/albapepper/nearlist/internal/geo"
)

// step resolves pos against stores and feeds the result to d, the same way
// the engine does.
func step(d *Detector, pos geo.Coordinate, stores []Store) Event {
	m, ok := Resolve(sampleAt(pos), stores)
	if !ok {
		return d.Observe(nil, pos, stores)
	}
	return d.Observe(&m, pos, stores)
}

func TestDetector_StartsInactive(t *testing.T) {
	d := NewDetector()
	if !d.State().Inactive() {
		t.Fatalf("expected inactive, got %+v", d.State())
	}
}

func TestDetector_EnterStayLeaveNoOp(t *testing.T) {
	x := Store{ID: "x", Name: "Grocer", Coordinate: origin, TriggerRadiusMeters: 150, ItemCount: 2}
	other := Store{ID: "y", Name: "Bakery", Coordinate: north(600), TriggerRadiusMeters: 50, ItemCount: 1}
	stores := []Store{x, other}
	d := NewDetector()

	ev := step(d, north(20), stores)
	if ev.Kind != Enter || ev.Store.ID != "x" {
		t.Fatalf("expected Enter(x), got %s(%s)", ev.Kind, ev.Store.ID)
	}
	if st := d.State(); !st.Active || st.StoreID != "x" {
		t.Fatalf("expected ActiveIn(x), got %+v", st)
	}

	ev = step(d, north(80), stores)
	if ev.Kind != Stay || ev.Store.ID != "x" {
		t.Fatalf("expected Stay(x), got %s(%s)", ev.Kind, ev.Store.ID)
	}
	if got := d.State().DistanceMeters; got < 79 || got > 81 {
		t.Fatalf("expected state distance ~80, got %f", got)
	}

	ev = step(d, north(400), stores)
	if ev.Kind != Leave || ev.Store.ID != "x" {
		t.Fatalf("expected Leave(x), got %s(%s)", ev.Kind, ev.Store.ID)
	}
	if len(ev.Candidates) != 1 || ev.Candidates[0].Store.ID != "y" {
		t.Fatalf("expected candidate y, got %+v", ev.Candidates)
	}
	if !d.State().Inactive() {
		t.Fatalf("expected inactive after leave, got %+v", d.State())
	}

	ev = step(d, north(400), stores)
	if ev.Kind != NoOp {
		t.Fatalf("expected NoOp, got %s", ev.Kind)
	}
	if !d.State().Inactive() {
		t.Fatalf("NoOp changed state: %+v", d.State())
	}
}

func TestDetector_DirectTransferIsSingleEnter(t *testing.T) {
	a := Store{ID: "a", Coordinate: origin, TriggerRadiusMeters: 100, ItemCount: 1}
	b := Store{ID: "b", Coordinate: north(250), TriggerRadiusMeters: 100, ItemCount: 1}
	stores := []Store{a, b}
	d := NewDetector()

	if ev := step(d, origin, stores); ev.Kind != Enter || ev.Store.ID != "a" {
		t.Fatalf("expected Enter(a), got %s(%s)", ev.Kind, ev.Store.ID)
	}

	// 220m north: outside a, inside b.
	ev := step(d, north(220), stores)
	if ev.Kind != Enter || ev.Store.ID != "b" {
		t.Fatalf("expected Enter(b), got %s(%s)", ev.Kind, ev.Store.ID)
	}
	if ev.Candidates != nil {
		t.Fatalf("enter should carry no candidates, got %+v", ev.Candidates)
	}
	if st := d.State(); st.StoreID != "b" {
		t.Fatalf("expected ActiveIn(b), got %+v", st)
	}
}

func TestDetector_LeaveRemembersStoreRemovedFromSet(t *testing.T) {
	a := Store{ID: "a", Name: "Gone Soon", Coordinate: origin, TriggerRadiusMeters: 100}
	d := NewDetector()
	step(d, origin, []Store{a})

	ev := step(d, origin, nil)
	if ev.Kind != Leave {
		t.Fatalf("expected Leave, got %s", ev.Kind)
	}
	if ev.Store.Name != "Gone Soon" {
		t.Fatalf("expected departed store snapshot, got %+v", ev.Store)
	}
	if len(ev.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %+v", ev.Candidates)
	}
}

func TestDetector_LeaveExcludesDepartedStore(t *testing.T) {
	a := Store{ID: "a", Coordinate: origin, TriggerRadiusMeters: 100, ItemCount: 5}
	d := NewDetector()
	step(d, origin, []Store{a})

	ev := step(d, north(300), []Store{a})
	if ev.Kind != Leave {
		t.Fatalf("expected Leave, got %s", ev.Kind)
	}
	for _, c := range ev.Candidates {
		if c.Store.ID == "a" {
			t.Fatal("departed store listed as candidate")
		}
	}
}

func TestEventKindString(t *testing.T) {
	tests := map[EventKind]string{NoOp: "noop", Enter: "enter", Stay: "stay", Leave: "leave", EventKind(9): "EventKind(9)"}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(k), got, want)
		}
	}
}
