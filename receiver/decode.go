package receiver

import (
	"encoding/binary"

	"github.com/diodelink/diode/fec"
	"github.com/diodelink/diode/metrics"
	"github.com/diodelink/diode/protocol"
)

// Block is a fully decoded (or irrecoverably failed) block, ready for the
// egress state machine to act on.
type Block struct {
	SessionID uint8
	BlockID   uint8
	Data      []byte // nil if decoding failed
	Start     bool
	End       bool
}

// decodeBlock attempts to FEC-decode a popped block's shards into the
// original payload, mirroring the original's receive/mod.rs::decode. Shard
// 0 carries the block's true length as a big-endian u32 prefix ahead of the
// payload (see sender/ingress.go), but that prefix is only trustworthy once
// read back from the reconstructed output: shard 0 itself may be one of the
// missing packets Reconstruct fills in, so the length cannot be peeked from
// the raw, possibly-absent shard ahead of decoding.
func decodeBlock(codec *fec.Codec, m *metrics.Registry, pb poppedBlock) Block {
	data, ok := codec.Decode(pb.Shards, -1)
	if !ok {
		m.RxDecodingBlocksErr.Inc()
		return Block{
			SessionID: pb.SessionID,
			BlockID:   pb.BlockID,
			Data:      nil,
			Start:     pb.Flags.Has(protocol.Start),
			End:       pb.Flags.Has(protocol.End),
		}
	}
	m.RxDecodingBlocks.Inc()

	if len(data) >= 4 {
		length := int(binary.BigEndian.Uint32(data[:4]))
		end := 4 + length
		if end >= 4 && end <= len(data) {
			data = data[4:end]
		} else {
			data = data[4:]
		}
	}
	return Block{
		SessionID: pb.SessionID,
		BlockID:   pb.BlockID,
		Data:      data,
		Start:     pb.Flags.Has(protocol.Start),
		End:       pb.Flags.Has(protocol.End),
	}
}
