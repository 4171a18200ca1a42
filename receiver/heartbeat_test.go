package receiver

import (
	"testing"
	"time"
)

func TestHeartbeatUpdateSuppressesWarning(t *testing.T) {
	h := NewHeartbeatMonitor(50 * time.Millisecond)
	h.Update()
	before := h.lastLog
	h.Check() // should not warn; just freshly updated
	if !h.lastLog.Equal(before) {
		t.Fatal("expected no warning right after Update")
	}
}

func TestHeartbeatRateLimitsLogging(t *testing.T) {
	h := NewHeartbeatMonitor(1 * time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	first := h.lastLog
	h.Check()
	if !h.lastLog.After(first) {
		t.Fatal("expected first Check past the interval to update lastLog")
	}

	second := h.lastLog
	h.Check() // immediately again; rate limit should suppress a second log
	if !h.lastLog.Equal(second) {
		t.Fatal("expected rate limiting to suppress a second warning within 1s")
	}
}
