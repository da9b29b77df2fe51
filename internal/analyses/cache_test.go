package analyses

import (
	"testing"
	"time"
)

func TestSnapshotCacheTTLAndInvalidation(t *testing.T) {
	current := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	cache := newSnapshotCache(2*time.Second, func() time.Time { return current })

	analysis := Analysis{ID: "a1", Status: StatusSummarizing}
	comments := []Comment{{ID: "c1", AnalysisID: "a1", Index: 0}}
	cache.Put("a1", cache.Epoch("a1"), analysis, comments)

	got, gotComments, ok := cache.Get("a1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.ID != "a1" || len(gotComments) != 1 {
		t.Fatalf("unexpected cached snapshot: %+v, %d comments", got, len(gotComments))
	}

	// Mutating the returned slice must not leak into the cache.
	gotComments[0].Summary = "mutated"
	_, again, _ := cache.Get("a1")
	if again[0].Summary != "" {
		t.Fatal("cache entry shares memory with caller slice")
	}

	current = current.Add(3 * time.Second)
	if _, _, ok := cache.Get("a1"); ok {
		t.Fatal("expected expiry after TTL")
	}

	current = current.Add(-3 * time.Second)
	cache.Put("a1", cache.Epoch("a1"), analysis, comments)
	cache.Invalidate("a1")
	if _, _, ok := cache.Get("a1"); ok {
		t.Fatal("expected miss after invalidation")
	}
}

func TestSnapshotCacheDropsWritesFromBeforeInvalidation(t *testing.T) {
	cache := newSnapshotCache(time.Minute, nil)

	// A reader records the epoch, reads the store, then a mutation
	// invalidates the ID before the reader stores its result. That store
	// must be dropped, or pollers would see pre-mutation state for the TTL.
	epoch := cache.Epoch("a1")
	stale := Analysis{ID: "a1", Status: StatusDone}
	cache.Invalidate("a1")
	cache.Put("a1", epoch, stale, nil)
	if _, _, ok := cache.Get("a1"); ok {
		t.Fatal("snapshot read before invalidation was cached after it")
	}

	// A read started after the invalidation still lands.
	fresh := Analysis{ID: "a1", Status: StatusSummarizing}
	cache.Put("a1", cache.Epoch("a1"), fresh, nil)
	got, _, ok := cache.Get("a1")
	if !ok || got.Status != StatusSummarizing {
		t.Fatalf("expected post-invalidation snapshot to be served, got ok=%v status=%q", ok, got.Status)
	}
}
