package analyses

import (
	"sync"
	"time"
)

const renderLimitWindow = 5 * time.Second

// renderLimiter throttles expensive per-analysis renders (the word cloud):
// at most one render per analysis per window.
type renderLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newRenderLimiter(window time.Duration, now func() time.Time) *renderLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = renderLimitWindow
	}
	return &renderLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *renderLimiter) Allow(analysisID string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[analysisID]; ok {
		if now.Sub(last) < l.window {
			return false
		}
	}
	l.lastHit[analysisID] = now
	return true
}

func (l *renderLimiter) RetryAfterSeconds() int {
	if l == nil {
		return int(renderLimitWindow.Seconds())
	}
	return int(l.window.Seconds())
}
