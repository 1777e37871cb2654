package zone

import (
	"fmt"

	"github.com/albapepper/nearlist/internal/geo"
)

// EventKind classifies the outcome of one observed sample.
type EventKind int

const (
	NoOp EventKind = iota
	Enter
	Stay
	Leave
)

func (k EventKind) String() string {
	switch k {
	case NoOp:
		return "noop"
	case Enter:
		return "enter"
	case Stay:
		return "stay"
	case Leave:
		return "leave"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// MarshalText lets events render with readable kinds in JSON and logs.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is a zone transition reported by a Detector.
//
// For Enter and Stay, Store and DistanceMeters describe the active store.
// For Leave, Store is the store that was left and Candidates holds nearby
// stores worth mentioning; DistanceMeters is the last distance observed
// while inside.
type Event struct {
	Kind           EventKind `json:"kind"`
	Store          Store     `json:"store"`
	DistanceMeters float64   `json:"distance_m"`
	Candidates     []Match   `json:"candidates,omitempty"`
}

// State is the detector's view of where the user is. The zero value is
// Inactive.
type State struct {
	Active         bool    `json:"active"`
	StoreID        string  `json:"store_id,omitempty"`
	DistanceMeters float64 `json:"distance_m,omitempty"`
}

// Inactive reports whether no store is active.
func (s State) Inactive() bool { return !s.Active }

// Detector is a two-state machine (inactive / active in one store).
// It is not safe for concurrent use; callers serialize Observe.
type Detector struct {
	state State
	// current is the snapshot of the active store taken on the last
	// Enter or Stay, so Leave can still name it if the store set changed.
	current Store
}

// NewDetector returns a detector in the Inactive state.
func NewDetector() *Detector {
	return &Detector{}
}

// State returns the current zone state.
func (d *Detector) State() State {
	return d.state
}

// Active returns the snapshot of the active store, if any.
func (d *Detector) Active() (Store, bool) {
	return d.current, d.state.Active
}

// Observe advances the state machine with the resolver's result for one
// sample. pos and stores are the same inputs the resolver saw; they are only
// used to collect departure candidates.
//
// Entering a different store always wins over leaving the previous one, so
// walking straight from A into B yields a single Enter(B).
func (d *Detector) Observe(resolved *Match, pos geo.Coordinate, stores []Store) Event {
	switch {
	case resolved != nil && (!d.state.Active || d.state.StoreID != resolved.Store.ID):
		d.state = State{Active: true, StoreID: resolved.Store.ID, DistanceMeters: resolved.DistanceMeters}
		d.current = resolved.Store
		return Event{Kind: Enter, Store: resolved.Store, DistanceMeters: resolved.DistanceMeters}

	case resolved == nil && d.state.Active:
		prev, last := d.current, d.state.DistanceMeters
		d.state = State{}
		d.current = Store{}
		return Event{
			Kind:           Leave,
			Store:          prev,
			DistanceMeters: last,
			Candidates:     NearbyCandidates(pos, stores, prev.ID),
		}

	case resolved != nil:
		d.state.DistanceMeters = resolved.DistanceMeters
		d.current = resolved.Store
		return Event{Kind: Stay, Store: resolved.Store, DistanceMeters: resolved.DistanceMeters}

	default:
		return Event{Kind: NoOp}
	}
}
