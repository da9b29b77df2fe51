package analyses

import (
	"testing"
	"time"
)

func TestRenderLimiterWindow(t *testing.T) {
	current := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	limiter := newRenderLimiter(5*time.Second, func() time.Time { return current })

	if !limiter.Allow("a1") {
		t.Fatal("first render should be allowed")
	}
	if limiter.Allow("a1") {
		t.Fatal("second render inside window should be limited")
	}
	if !limiter.Allow("a2") {
		t.Fatal("limit is per-analysis")
	}

	current = current.Add(5 * time.Second)
	if !limiter.Allow("a1") {
		t.Fatal("render after window should be allowed")
	}
	if limiter.RetryAfterSeconds() != 5 {
		t.Fatalf("RetryAfterSeconds = %d, want 5", limiter.RetryAfterSeconds())
	}
}
