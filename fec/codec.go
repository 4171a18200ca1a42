// Package fec adapts github.com/klauspost/reedsolomon into the per-block
// erasure codec this bridge needs: split one TCP-ingress block into a fixed
// number of source shards, produce a fixed number of parity shards, and
// reconstruct the block from any sufficiently large subset of shards that
// arrives out of order and with gaps, the way
// other_examples/…Lzww0608-safe-udp's fecDecoder builds per-"shard set"
// reed-solomon state from arriving packets.
package fec

import (
	"github.com/klauspost/reedsolomon"

	"github.com/diodelink/diode/protocol"
)

// Codec encodes one block into Capacity shard-tagged packets and decodes a
// block back from any NbSourceShards of them.
type Codec struct {
	// enc is nil when NbRepairShards is 0: reedsolomon.New requires at
	// least one parity shard, and a codec configured with no repair budget
	// at all has nothing for it to do — Encode/Decode bypass it entirely in
	// that case, so a block with no repair capacity genuinely cannot
	// survive the loss of any single packet (spec.md §8 scenario 3).
	enc reedsolomon.Encoder

	// NbSourceShards is the number of source (data) shards a full block is
	// split into.
	NbSourceShards int
	// NbRepairShards is the number of parity shards generated per block.
	NbRepairShards int
	// ShardSize is the byte size of every shard, source or parity.
	ShardSize int
}

// Capacity is the total number of packets (source + repair) produced for
// one block.
func (c *Codec) Capacity() int {
	return c.NbSourceShards + c.NbRepairShards
}

// TransferLength is the number of bytes of stream payload (including the
// protocol.PayloadOverhead length prefix) one block carries: the sender's
// ingress buffer is sized to exactly this, so a single TCP read can fill an
// entire block.
func (c *Codec) TransferLength() int {
	return c.NbSourceShards * c.ShardSize
}

// NewCodec builds a Codec sized for one block of up to encodingBlockSize
// bytes, transmitted over datagrams of udpMTU bytes, with repairBlockSize
// bytes worth of parity shards. The shard count derivation matches the
// original lidi's object_transmission_information / repair_block_size
// split, adapted from symbol-based RaptorQ accounting to whole-shard
// reed-solomon accounting.
func NewCodec(encodingBlockSize uint64, udpMTU uint16, repairBlockSize uint32) (*Codec, error) {
	packetPayloadSize := int(udpMTU) - protocol.HeaderSize
	if packetPayloadSize <= 0 {
		return nil, errInvalidMTU
	}

	nbSourceShards := ceilDiv(int(encodingBlockSize), packetPayloadSize)
	if nbSourceShards < 1 {
		nbSourceShards = 1
	}
	// A repair_block_size of 0 means exactly zero repair shards, not one:
	// reedsolomon.New refuses a zero parityShards count, so that case skips
	// the encoder entirely rather than being clamped up to a repair shard
	// the configuration never asked for.
	nbRepairShards := ceilDiv(int(repairBlockSize), packetPayloadSize)

	var enc reedsolomon.Encoder
	if nbRepairShards > 0 {
		var err error
		enc, err = reedsolomon.New(nbSourceShards, nbRepairShards)
		if err != nil {
			return nil, err
		}
	}

	return &Codec{
		enc:            enc,
		NbSourceShards: nbSourceShards,
		NbRepairShards: nbRepairShards,
		ShardSize:      packetPayloadSize,
	}, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Encode splits block into NbSourceShards shards (zero-padding the final
// one), computes NbRepairShards parity shards, and returns Capacity
// packets. Packet i (0-indexed) is the i-th shard, tagged with its own
// index by the caller via the header's Seq field — Encode itself is
// agnostic to how shard index is carried on the wire.
func (c *Codec) Encode(block []byte) ([][]byte, error) {
	shards := make([][]byte, c.Capacity())
	for i := 0; i < c.NbSourceShards; i++ {
		shards[i] = make([]byte, c.ShardSize)
		start := i * c.ShardSize
		if start < len(block) {
			end := start + c.ShardSize
			if end > len(block) {
				end = len(block)
			}
			copy(shards[i], block[start:end])
		}
	}
	for i := c.NbSourceShards; i < c.Capacity(); i++ {
		shards[i] = make([]byte, c.ShardSize)
	}
	if c.enc != nil {
		if err := c.enc.Encode(shards); err != nil {
			return nil, err
		}
	}
	return shards, nil
}

// Decode reconstructs a block from a sparse map of shard index -> shard
// data (present shards only). It returns ok=false when fewer than
// NbSourceShards distinct shards are present and reconstruction cannot be
// attempted — matching the reorder buffer's own "not complete yet" signal.
// length is the original block length (recovered from the length prefix
// embedded by the sender), used to trim shard padding off the tail.
func (c *Codec) Decode(shardsByIndex map[int][]byte, length int) ([]byte, bool) {
	if len(shardsByIndex) < c.NbSourceShards {
		return nil, false
	}

	shards := make([][]byte, c.Capacity())
	for i, data := range shardsByIndex {
		if i < 0 || i >= c.Capacity() {
			continue
		}
		shards[i] = data
	}

	if c.enc != nil {
		if err := c.enc.Reconstruct(shards); err != nil {
			return nil, false
		}
	}

	out := make([]byte, 0, c.NbSourceShards*c.ShardSize)
	for i := 0; i < c.NbSourceShards; i++ {
		if shards[i] == nil {
			return nil, false
		}
		out = append(out, shards[i]...)
	}
	if length >= 0 && length <= len(out) {
		out = out[:length]
	}
	return out, true
}
