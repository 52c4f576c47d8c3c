package cache

import (
	"strconv"
	"sync"
	"time"

	"centsible/internal/core"
)

// SummaryCache holds per-user ledger summaries. Entries are dropped when
// the user records a transaction and expire after ttl otherwise, which
// bounds staleness after background balance repairs.
//
// Every Invalidate bumps the user's generation. A summary computed before
// an Invalidate carries the older generation and is refused by Set.
type SummaryCache struct {
	entries Cache[core.LedgerSummary]

	mu          sync.Mutex
	generations map[int64]uint64
}

func NewSummaryCache(maxUsers int, ttl time.Duration) *SummaryCache {
	return newSummaryCache(NewLRUCache[core.LedgerSummary](maxUsers, ttl))
}

func newSummaryCache(entries Cache[core.LedgerSummary]) *SummaryCache {
	return &SummaryCache{entries: entries, generations: make(map[int64]uint64)}
}

func summaryKey(userID int64) string {
	return "summary:" + strconv.FormatInt(userID, 10)
}

func (c *SummaryCache) Get(userID int64) (core.LedgerSummary, bool) {
	return c.entries.Get(summaryKey(userID))
}

// Generation returns the user's current generation. Read it before
// computing the summary that will be passed to Set.
func (c *SummaryCache) Generation(userID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// Set stores s unless the user was invalidated since generation was read.
func (c *SummaryCache) Set(s core.LedgerSummary, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[s.UserID] != generation {
		return false
	}
	c.entries.Set(summaryKey(s.UserID), s)
	return true
}

// Invalidate forgets the user's summary.
func (c *SummaryCache) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[userID]++
	c.entries.Delete(summaryKey(userID))
}

func (c *SummaryCache) CleanExpired() int { return c.entries.CleanExpired() }

func (c *SummaryCache) Stats() Stats { return c.entries.Stats() }
