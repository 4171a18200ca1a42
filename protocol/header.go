// Package protocol defines the wire framing for the diode UDP datagrams:
// the fixed 4-byte header carried by every packet, and the control payload
// ("LidiParameters") carried once by the sender's Init packet.
package protocol

import (
	"github.com/pkg/errors"
)

// MessageType is a bitmask carried in every header. Multiple bits may be
// set on the same packet (e.g. Start|Data, or Data|End).
type MessageType uint8

const (
	Init MessageType = 1 << iota
	Heartbeat
	Start
	Data
	End
)

// HeaderSize is the number of bytes a serialized Header occupies on the wire.
const HeaderSize = 4

// MaxMTU bounds the largest UDP payload this implementation will ever
// attempt to read or write, matching the original diode's MAX_MTU.
const MaxMTU = 9000

// PayloadOverhead is the number of bytes reserved at the front of every
// TCP-ingress block buffer for the big-endian length prefix that frames the
// TCP byte stream inside a block. It is the sole framing mechanism for the
// carried TCP stream: see SPEC_FULL.md §4.5 and §9.
const PayloadOverhead = 4

// FirstSessionID and FirstBlockID are the ids assigned to the first session
// and first block of a session, respectively. Both wrap modulo 256.
const (
	FirstSessionID uint8 = 0
	FirstBlockID   uint8 = 0
)

// Header is the 4-byte framing every UDP datagram in this protocol carries
// ahead of its payload.
type Header struct {
	MessageType MessageType
	SessionID   uint8
	BlockID     uint8
	Seq         uint8
}

// Has reports whether all bits of want are set in h's message type.
func (h Header) Has(want MessageType) bool {
	return h.MessageType&want == want
}

// Serialize encodes h into its 4-byte wire representation.
func (h Header) Serialize() [HeaderSize]byte {
	var b [HeaderSize]byte
	b[0] = byte(h.MessageType)
	b[1] = h.SessionID
	b[2] = h.BlockID
	b[3] = h.Seq
	return b
}

// ErrMalformedHeader is returned by DeserializeHeader when the input is
// shorter than HeaderSize.
var ErrMalformedHeader = errors.New("malformed header")

// DeserializeHeader decodes the first HeaderSize bytes of b into a Header.
func DeserializeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.Wrapf(ErrMalformedHeader, "need %d bytes, got %d", HeaderSize, len(b))
	}
	return Header{
		MessageType: MessageType(b[0]),
		SessionID:   b[1],
		BlockID:     b[2],
		Seq:         b[3],
	}, nil
}

// SeqAfter reports whether a is strictly later than b in modular
// sequence space, treating a forward gap of up to 128 as "later" and
// anything past that as wraparound ("earlier"). Used to order
// (session_id, block_id) pairs and FEC packet sequence numbers, the same
// style of wrapped comparison KCP-family protocols use for sequence
// numbers.
func SeqAfter(a, b uint8) bool {
	gap := a - b
	return gap >= 1 && gap <= 128
}
