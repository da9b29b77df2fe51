package analyses

import (
	"sync"
	"time"
)

const snapshotTTL = 2 * time.Second

// snapshotCache shields the repo from tight polling loops. Entries are
// invalidated on every mutation, and invalidation is versioned: a reader
// that fetched from the store before a mutation committed cannot re-insert
// that stale snapshot afterwards, so a poller never reads a snapshot older
// than the last committed batch.
type snapshotCache struct {
	mu      sync.Mutex
	entries map[string]snapshotEntry
	epochs  map[string]uint64
	ttl     time.Duration
	now     func() time.Time
}

type snapshotEntry struct {
	analysis Analysis
	comments []Comment
	storedAt time.Time
}

func newSnapshotCache(ttl time.Duration, now func() time.Time) *snapshotCache {
	if ttl <= 0 {
		ttl = snapshotTTL
	}
	if now == nil {
		now = time.Now
	}
	return &snapshotCache{
		entries: make(map[string]snapshotEntry),
		epochs:  make(map[string]uint64),
		ttl:     ttl,
		now:     now,
	}
}

func (c *snapshotCache) Get(analysisID string) (Analysis, []Comment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[analysisID]
	if !ok {
		return Analysis{}, nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, analysisID)
		return Analysis{}, nil, false
	}
	comments := make([]Comment, len(entry.comments))
	copy(comments, entry.comments)
	return entry.analysis, comments, true
}

// Epoch returns the current invalidation epoch for the analysis. Callers
// record it before reading the store and hand it back to Put.
func (c *snapshotCache) Epoch(analysisID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochs[analysisID]
}

// Put stores a snapshot read at the given epoch. The entry is dropped when
// a mutation invalidated the analysis after the epoch was taken: the
// snapshot may predate that mutation.
func (c *snapshotCache) Put(analysisID string, epoch uint64, analysis Analysis, comments []Comment) {
	stored := make([]Comment, len(comments))
	copy(stored, comments)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochs[analysisID] != epoch {
		return
	}
	c.entries[analysisID] = snapshotEntry{
		analysis: analysis,
		comments: stored,
		storedAt: c.now(),
	}
}

func (c *snapshotCache) Invalidate(analysisID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[analysisID]++
	delete(c.entries, analysisID)
}
