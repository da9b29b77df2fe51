package analyses

import "sync"

// leaseTable guards per-analysis summarization: at most one scheduler pass
// runs for an analysis at a time, whether started by creation or by a retry.
type leaseTable struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newLeaseTable() *leaseTable {
	return &leaseTable{active: make(map[string]struct{})}
}

// Acquire reserves the analysis for a summarization pass. It returns false
// when a pass is already running.
func (t *leaseTable) Acquire(analysisID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, held := t.active[analysisID]; held {
		return false
	}
	t.active[analysisID] = struct{}{}
	return true
}

// Release frees the lease. Safe to call for an ID that is not held.
func (t *leaseTable) Release(analysisID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, analysisID)
}

// Held reports whether a pass is currently running for the analysis.
func (t *leaseTable) Held(analysisID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, held := t.active[analysisID]
	return held
}
