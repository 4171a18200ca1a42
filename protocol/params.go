package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ParamsSize is the wire size of a serialized LidiParameters: one u64, two
// u32, one u16 and one u8, packed big-endian (8+4+4+2+1).
const ParamsSize = 8 + 4 + 4 + 2 + 1

// LidiParameters is the control payload the sender transmits once, inside
// the single Init-flagged packet that precedes any data, so the receiver
// can validate its own configuration against the sender's before decoding
// anything.
type LidiParameters struct {
	EncodingBlockSize  uint64
	RepairBlockSize    uint32
	HeartbeatIntervalMs uint32
	UDPMTU             uint16
	NbThreads          uint8
}

// Serialize encodes p into its ParamsSize-byte big-endian wire representation.
func (p LidiParameters) Serialize() [ParamsSize]byte {
	var b [ParamsSize]byte
	binary.BigEndian.PutUint64(b[0:8], p.EncodingBlockSize)
	binary.BigEndian.PutUint32(b[8:12], p.RepairBlockSize)
	binary.BigEndian.PutUint32(b[12:16], p.HeartbeatIntervalMs)
	binary.BigEndian.PutUint16(b[16:18], p.UDPMTU)
	b[18] = p.NbThreads
	return b
}

// ErrMalformedParams is returned by DeserializeLidiParameters when the
// input is shorter than ParamsSize.
var ErrMalformedParams = errors.New("malformed lidi parameters")

// DeserializeLidiParameters decodes the first ParamsSize bytes of b.
func DeserializeLidiParameters(b []byte) (LidiParameters, error) {
	if len(b) < ParamsSize {
		return LidiParameters{}, errors.Wrapf(ErrMalformedParams, "need %d bytes, got %d", ParamsSize, len(b))
	}
	return LidiParameters{
		EncodingBlockSize:   binary.BigEndian.Uint64(b[0:8]),
		RepairBlockSize:     binary.BigEndian.Uint32(b[8:12]),
		HeartbeatIntervalMs: binary.BigEndian.Uint32(b[12:16]),
		UDPMTU:              binary.BigEndian.Uint16(b[16:18]),
		NbThreads:           b[18],
	}, nil
}

// Equal reports whether two LidiParameters describe the same configuration.
func (p LidiParameters) Equal(o LidiParameters) bool {
	return p == o
}
