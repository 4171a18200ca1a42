package protocol

import "testing"

func TestLidiParametersRoundTrip(t *testing.T) {
	p := LidiParameters{
		EncodingBlockSize:   8 * 1024 * 1024,
		RepairBlockSize:     2 * 1024 * 1024,
		HeartbeatIntervalMs: 500,
		UDPMTU:              1500,
		NbThreads:           4,
	}
	wire := p.Serialize()
	if len(wire) != ParamsSize {
		t.Fatalf("Serialize length = %d, want %d", len(wire), ParamsSize)
	}
	got, err := DeserializeLidiParameters(wire[:])
	if err != nil {
		t.Fatalf("DeserializeLidiParameters: %v", err)
	}
	if !got.Equal(p) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestDeserializeLidiParametersTooShort(t *testing.T) {
	_, err := DeserializeLidiParameters(make([]byte, ParamsSize-1))
	if err == nil {
		t.Fatal("expected error for truncated input")
	}
}
