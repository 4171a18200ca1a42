package protocol

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{MessageType: Init, SessionID: 0, BlockID: 0, Seq: 0},
		{MessageType: Start | Data, SessionID: 7, BlockID: 255, Seq: 12},
		{MessageType: Data | End, SessionID: 255, BlockID: 0, Seq: 200},
		{MessageType: Heartbeat, SessionID: 1, BlockID: 1, Seq: 1},
	}
	for _, h := range cases {
		wire := h.Serialize()
		got, err := DeserializeHeader(wire[:])
		if err != nil {
			t.Fatalf("DeserializeHeader(%v): %v", h, err)
		}
		if got != h {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestDeserializeHeaderTooShort(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		_, err := DeserializeHeader(make([]byte, n))
		if err == nil {
			t.Errorf("expected error for %d-byte input", n)
		}
	}
}

func TestHeaderHas(t *testing.T) {
	h := Header{MessageType: Start | Data}
	if !h.Has(Start) || !h.Has(Data) {
		t.Fatal("expected both Start and Data set")
	}
	if h.Has(End) {
		t.Fatal("did not expect End set")
	}
	if !h.Has(Start | Data) {
		t.Fatal("expected combined mask to match")
	}
}

func TestSeqAfter(t *testing.T) {
	cases := []struct {
		a, b uint8
		want bool
	}{
		{1, 0, true},
		{0, 1, false},
		{0, 255, true},  // wraparound: 0 is "after" 255
		{255, 0, false}, // and 255 is "before" 0
		{5, 5, false},
	}
	for _, c := range cases {
		if got := SeqAfter(c.a, c.b); got != c.want {
			t.Errorf("SeqAfter(%d, %d) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
