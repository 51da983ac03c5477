// Package cache provides the short-TTL, segment-keyed subscription cache.
// Entries are valid for two minutes, and writing an entry for one segment
// purges the same user's entries for every other segment, so stale data can
// never leak across cohorts after a level change.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shuleplus/backend/internal/domain"
)

// TTL is how long a cached subscription record stays valid.
const TTL = 2 * time.Minute

// Cache stores the current subscription record per user and segment.
type Cache interface {
	// Put stores a record under the user's active segment and purges the
	// user's entries for all other segments.
	Put(ctx context.Context, userID string, segment domain.Segment, rec *domain.SubscriptionRecord) error
	// Get returns the cached record, or false when absent or older than TTL.
	// A stale entry is a cache miss, not an error.
	Get(ctx context.Context, userID string, segment domain.Segment) (*domain.SubscriptionRecord, bool)
}

type memoryEntry struct {
	rec       *domain.SubscriptionRecord
	writtenAt time.Time
}

// Memory is the in-process Cache implementation, used in tests and when no
// Redis URL is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]map[domain.Segment]memoryEntry
	now     func() time.Time
}

// NewMemory creates an in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]map[domain.Segment]memoryEntry),
		now:     time.Now,
	}
}

func (c *Memory) Put(ctx context.Context, userID string, segment domain.Segment, rec *domain.SubscriptionRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// One segment per user: drop everything else before writing.
	c.entries[userID] = map[domain.Segment]memoryEntry{
		segment: {rec: rec, writtenAt: c.now()},
	}
	return nil
}

func (c *Memory) Get(ctx context.Context, userID string, segment domain.Segment) (*domain.SubscriptionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[userID][segment]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.writtenAt) >= TTL {
		delete(c.entries[userID], segment)
		return nil, false
	}
	return entry.rec, true
}
