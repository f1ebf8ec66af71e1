package checkin

import (
	"context"
	"fmt"
	"sync"

	"github.com/your-org/presensi/internal/models"
)

// RosterCache holds the identities one session matches against. It is filled
// once and read-only until cleared.
type RosterCache struct {
	mu      sync.RWMutex
	entries []models.RosterEntry
	loaded  bool
}

// Load fills the cache from src unless it is already loaded.
func (c *RosterCache) Load(ctx context.Context, src RosterSource, personID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return nil
	}
	entries, err := src.LoadRoster(ctx, personID)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	c.entries = entries
	c.loaded = true
	return nil
}

// Entries returns the cached roster. Callers must not modify it.
func (c *RosterCache) Entries() []models.RosterEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries
}

// Matchable counts entries that carry a descriptor.
func (c *RosterCache) Matchable() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return countMatchable(c.entries)
}

// Clear discards the cached roster.
func (c *RosterCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.loaded = false
}

func countMatchable(entries []models.RosterEntry) int {
	n := 0
	for i := range entries {
		if entries[i].HasDescriptor() {
			n++
		}
	}
	return n
}
