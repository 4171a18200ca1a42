package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	r := New()
	r.TxSessions.Inc()
	r.RxSkipBlock.Add(3)

	if got := testutil.ToFloat64(r.TxSessions); got != 1 {
		t.Errorf("TxSessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.RxSkipBlock); got != 3 {
		t.Errorf("RxSkipBlock = %v, want 3", got)
	}
}

func TestServeWithEmptyAddrIsNoop(t *testing.T) {
	r := New()
	r.Serve("") // must not panic or block
}
