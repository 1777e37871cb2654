// Package notifications turns zone transitions into push notification
// commands.
//
// Pipeline: zone event → cooldown check → build command → record cooldown →
// hand off to a delivery Worker. Delivery is fire-and-forget; a failed send
// never rolls back the cooldown that was already recorded.
package notifications

import (
	"context"
	"errors"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	arrivalCooldown   = 60 * time.Minute // 3,600,000 ms
	departureCooldown = 30 * time.Minute // 1,800,000 ms

	defaultQueueSize = 32
)

// ErrCooldownUnavailable is returned when the cooldown store cannot be read
// or written. The notification is suppressed in that case.
var ErrCooldownUnavailable = errors.New("cooldown store unavailable")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Kind is the notification flavor. Each kind has its own cooldown window.
type Kind string

const (
	Arrival   Kind = "arrival"
	Departure Kind = "departure"
)

// Cooldown returns the minimum time between two notifications of this kind
// for the same store.
func (k Kind) Cooldown() time.Duration {
	if k == Departure {
		return departureCooldown
	}
	return arrivalCooldown
}

// Command is a single notification ready for delivery.
type Command struct {
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tag       string    `json:"tag"` // delivery-side dedupe key
	StoreID   string    `json:"store_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CooldownStore persists the last time each (store, kind) pair fired.
// The dispatcher only reads and overwrites records and never deletes them;
// dropping expired records is left to the backend (see cooldown Prune).
type CooldownStore interface {
	// Get returns ok=false when the pair never fired.
	Get(ctx context.Context, storeID string, kind Kind) (at time.Time, ok bool, err error)
	Set(ctx context.Context, storeID string, kind Kind, at time.Time) error
}

// CooldownKey is the storage key for a (store, kind) pair, e.g. arrived_42.
func CooldownKey(storeID string, kind Kind) string {
	if kind == Departure {
		return "departed_" + storeID
	}
	return "arrived_" + storeID
}
