// Package cooldown provides CooldownStore backends for the notification
// dispatcher: in-memory, SQLite and Postgres.
//
// All backends keep one record per (store, kind) key, which the dispatcher
// only reads and overwrites. Prune is separate from dispatch: maintenance
// calls it to drop records older than a cutoff, and a record older than its
// cooldown behaves exactly like a missing one, so pruning never changes a
// decision.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/albapepper/nearlist/internal/notifications"
)

var (
	_ notifications.CooldownStore = (*Memory)(nil)
	_ notifications.CooldownStore = (*SQLite)(nil)
	_ notifications.CooldownStore = (*Postgres)(nil)
)

// Memory is a process-local cooldown store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]time.Time)}
}

// Get returns the last firing time for the pair.
func (m *Memory) Get(_ context.Context, storeID string, kind notifications.Kind) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.records[notifications.CooldownKey(storeID, kind)]
	return at, ok, nil
}

// Set records at as the last firing time for the pair.
func (m *Memory) Set(_ context.Context, storeID string, kind notifications.Kind, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[notifications.CooldownKey(storeID, kind)] = at
	return nil
}

// Prune deletes records fired before cutoff.
func (m *Memory) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, at := range m.records {
		if at.Before(cutoff) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of records held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
