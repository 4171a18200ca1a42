// Package sender implements the TCP ingress, block dispatcher, and
// encoder/sender lanes that make up the sending half of the diode: C5, C6
// and C7 of SPEC_FULL.md, ported from the original diode's send/tcp.rs and
// send/mod.rs.
package sender

import (
	"encoding/binary"
	"io"
	"log"
	"net"
	"time"

	"github.com/diodelink/diode/protocol"
	"github.com/diodelink/diode/throttle"
)

// partialReadProbe is the deadline window used, once a block already holds
// some buffered data, to detect whether more is immediately available
// without blocking indefinitely — Go's closest equivalent to the original's
// nonblocking-socket "would block" check (spec.md §4.5's third Read()
// branch: flush a partial block rather than wait for it to fill).
const partialReadProbe = 2 * time.Millisecond

// blockMsg is what the ingress hands the dispatcher for every block it
// produces: a fully-populated header (minus Seq, which the encoder/sender
// lane assigns per packet) and the block's raw bytes.
type blockMsg struct {
	header  protocol.Header
	payload []byte
}

// Ingress reads one TCP client's byte stream and slices it into
// fixed-size, length-prefixed blocks, mirroring send/tcp.rs::Tcp. It holds
// exactly one preallocated block buffer, reused block after block.
type Ingress struct {
	conn      net.Conn
	throttle  *throttle.Throttle
	buf       []byte
	cursor    int
	sessionID uint8
	blockID   uint8
	started   bool // set once the session's first (Start) block is emitted
}

// NewIngress wraps conn, producing blocks of at most transferLength bytes
// (the FEC codec's TransferLength, including protocol.PayloadOverhead): a
// full block is exactly transferLength bytes, while a flushed partial block
// or the End block holds only the bytes buffered so far.
// thr may be nil to disable rate limiting.
func NewIngress(conn net.Conn, transferLength int, sessionID uint8, thr *throttle.Throttle) *Ingress {
	return &Ingress{
		conn:      conn,
		throttle:  thr,
		buf:       make([]byte, transferLength),
		cursor:    protocol.PayloadOverhead,
		sessionID: sessionID,
		blockID:   protocol.FirstBlockID,
	}
}

// Read blocks until one block is ready to emit, the client closes the
// connection, or a read error occurs. It fills the buffer to capacity
// before emitting a full Data block, the way send/tcp.rs accumulates reads
// up to object_transmission_information before handing a block to the
// encoder (spec.md §4.5). Once the current block holds at least one byte,
// each further read is bounded by partialReadProbe: a timeout there means
// no more data is immediately available, so the partial buffer is flushed
// as its own (undersized) Data block rather than waiting indefinitely for
// it to fill — Go's net.Conn has no nonblocking "would block" return, so a
// short read deadline stands in for it. EOF always yields a Data|End
// block, even one with no payload; ok is false only when the read fails
// with any other error than EOF or the probe timeout.
func (i *Ingress) Read() (protocol.Header, []byte, bool, error) {
	for {
		if i.cursor > protocol.PayloadOverhead {
			i.conn.SetReadDeadline(time.Now().Add(partialReadProbe))
		}

		n, err := i.conn.Read(i.buf[i.cursor:])
		if i.throttle != nil && n > 0 {
			i.throttle.Limit(n)
		}
		if n > 0 {
			i.cursor += n
		}

		if err == io.EOF {
			i.conn.SetReadDeadline(time.Time{})
			return i.emit(protocol.Data | protocol.End), i.finish(), true, nil
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			i.conn.SetReadDeadline(time.Time{})
			return i.emit(protocol.Data), i.finish(), true, nil
		}
		if err != nil {
			i.conn.SetReadDeadline(time.Time{})
			return protocol.Header{}, nil, false, err
		}

		if i.cursor == len(i.buf) {
			i.conn.SetReadDeadline(time.Time{})
			return i.emit(protocol.Data), i.finish(), true, nil
		}
	}
}

// emit builds the header for the current block: flags always carries Data
// (or Data|End, on the caller's say-so) plus Start whenever this is the
// first block of the session.
func (i *Ingress) emit(flags protocol.MessageType) protocol.Header {
	if !i.started {
		flags |= protocol.Start
		i.started = true
	}
	return protocol.Header{
		MessageType: flags,
		SessionID:   i.sessionID,
		BlockID:     i.blockID,
	}
}

// finish writes the length prefix, snapshots the buffer as the block
// payload, advances blockID with u8 wrap, and resets the cursor for the
// next block.
func (i *Ingress) finish() []byte {
	length := uint32(i.cursor - protocol.PayloadOverhead)
	binary.BigEndian.PutUint32(i.buf[0:4], length)

	out := make([]byte, i.cursor)
	copy(out, i.buf[:i.cursor])

	i.blockID++
	i.cursor = protocol.PayloadOverhead
	return out
}

// CloseSession returns the session id for the next TCP client (wrapping at
// 256), matching the sender side's session_id increment on close.
func CloseSession(sessionID uint8) uint8 {
	return sessionID + 1
}

// ConfigureReceiveBuffer grows conn's TCP receive buffer to at least
// 2*transferLength, warning (not failing) if the OS refuses — the
// from_buffer_size sizing rule of spec.md §4.5, following the teacher's
// warn-only convention for socket buffer tuning.
func ConfigureReceiveBuffer(conn *net.TCPConn, transferLength int) {
	want := 2 * transferLength
	if err := conn.SetReadBuffer(want); err != nil {
		log.Printf("warning: cannot grow tcp ingress receive buffer to %d: %v", want, err)
	}
}
