package memory

import (
	"context"
	"sync"
	"time"

	"solana-token-radar/internal/domain"
	"solana-token-radar/internal/storage"
)

// ShortlistCache is an in-memory storage.ShortlistCache.
type ShortlistCache struct {
	mu      sync.RWMutex
	entries []domain.ShortlistEntry
	seen    map[string]time.Time // mint -> expiry
	now     func() time.Time
}

// NewShortlistCache creates an empty cache. now may be nil.
func NewShortlistCache(now func() time.Time) *ShortlistCache {
	if now == nil {
		now = time.Now
	}
	return &ShortlistCache{seen: make(map[string]time.Time), now: now}
}

var _ storage.ShortlistCache = (*ShortlistCache)(nil)

// Publish replaces the current shortlist.
func (c *ShortlistCache) Publish(_ context.Context, entries []domain.ShortlistEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append([]domain.ShortlistEntry(nil), entries...)
	return nil
}

// Top returns up to k entries; k <= 0 returns all.
func (c *ShortlistCache) Top(_ context.Context, k int) ([]domain.ShortlistEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.entries)
	if k > 0 && k < n {
		n = k
	}
	return append([]domain.ShortlistEntry(nil), c.entries[:n]...), nil
}

// MarkSeen reports true the first time mint is marked within ttl.
func (c *ShortlistCache) MarkSeen(_ context.Context, mint string, ttl time.Duration) (bool, error) {
	if mint == "" {
		return false, storage.ErrInvalidInput
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.seen[mint]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	c.seen[mint] = exp
	return true, nil
}
