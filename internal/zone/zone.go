// Package zone turns position samples into geofence transitions.
//
// Resolve picks the single store whose trigger radius contains a position
// (nearest wins). A Detector keeps the only state that survives between
// samples, the currently active store, and reports Enter, Stay, Leave or
// NoOp for each resolved sample.
package zone

import (
	"sort"
	"time"

	"github.com/albapepper/nearlist/internal/geo"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// NearbyRadiusMeters bounds which stores may be suggested after leaving a zone.
	NearbyRadiusMeters = 1000.0
	// MaxCandidates caps the number of suggested stores on departure.
	MaxCandidates = 3
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// PositionSample is one reading from a position source.
type PositionSample struct {
	Coordinate     geo.Coordinate `json:"coordinate"`
	AccuracyMeters float64        `json:"accuracy_m"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Store is a geofenced location with a shopping list attached.
// The engine only reads stores; callers hand in a fresh snapshot per sample.
type Store struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Address             string         `json:"address,omitempty"`
	Coordinate          geo.Coordinate `json:"coordinate"`
	TriggerRadiusMeters float64        `json:"trigger_radius_m"`
	ItemCount           int            `json:"item_count"` // unchecked items only
}

// Match pairs a store with its distance from the sample that selected it.
type Match struct {
	Store          Store   `json:"store"`
	DistanceMeters float64 `json:"distance_m"`
}

// Resolve returns the nearest store whose trigger radius contains the
// sample. Equal distances keep the store that appears first in stores.
func Resolve(sample PositionSample, stores []Store) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, s := range stores {
		d := geo.Distance(sample.Coordinate, s.Coordinate)
		if d > s.TriggerRadiusMeters {
			continue
		}
		if !found || d < best.DistanceMeters {
			best = Match{Store: s, DistanceMeters: d}
			found = true
		}
	}
	return best, found
}

// NearbyCandidates lists stores with outstanding items within
// NearbyRadiusMeters of pos, nearest first, skipping excludeID.
// At most MaxCandidates are returned.
func NearbyCandidates(pos geo.Coordinate, stores []Store, excludeID string) []Match {
	var out []Match
	for _, s := range stores {
		if s.ID == excludeID || s.ItemCount <= 0 {
			continue
		}
		d := geo.Distance(pos, s.Coordinate)
		if d > NearbyRadiusMeters {
			continue
		}
		out = append(out, Match{Store: s, DistanceMeters: d})
	}
	SortByDistance(out)
	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	return out
}

// SortByDistance orders matches nearest first, keeping input order on ties.
func SortByDistance(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceMeters < matches[j].DistanceMeters
	})
}
