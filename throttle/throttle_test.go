package throttle

import (
	"testing"
	"time"
)

func TestLimitEnforcesRate(t *testing.T) {
	// 8000 bits/s == 1000 bytes/s; bucket starts empty, so the very first
	// call for 1000 bytes must wait roughly 1 second for tokens to refill.
	th := New(8000)
	start := time.Now()
	th.Limit(1000)
	elapsed := time.Since(start)
	if elapsed < 500*time.Millisecond {
		t.Fatalf("Limit returned too fast (%v) for an empty bucket", elapsed)
	}
}

func TestLimitDoesNotBlockWithinBudget(t *testing.T) {
	th := New(1_000_000_000) // effectively unlimited for a tiny payload
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	th.Limit(10)
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Limit blocked unexpectedly long: %v", elapsed)
	}
}

func TestRefreshCapsAtMaxTokens(t *testing.T) {
	th := New(1000)
	th.currentTokens = th.maxTokens // already full: any refresh would overflow without the cap
	time.Sleep(50 * time.Millisecond)
	th.refresh()
	if th.currentTokens > th.maxTokens {
		t.Fatalf("currentTokens %v exceeds maxTokens %v", th.currentTokens, th.maxTokens)
	}
}
