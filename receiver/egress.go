package receiver

import (
	"log"
	"net"
	"time"

	"github.com/diodelink/diode/metrics"
)

// egress states, named after spec.md §4.12's state machine.
const (
	stateDisconnected = iota
	stateAwaitingStart
	stateStreaming
)

// reconnectBackoff is the pause between downstream TCP connect attempts,
// matching the original receive/mod.rs reconnection loop.
const reconnectBackoff = 100 * time.Millisecond

// Egress is the receiver-side TCP state machine (C12): it (re)connects to
// a downstream TCP server and writes decoded blocks to it in the order
// they are produced by the reorder+decode stage, following
// receive/mod.rs::tcp_send_loop / tcp_send_first_block / tcp_send_inner_loop.
type Egress struct {
	addr string
	m    *metrics.Registry

	state     int
	conn      net.Conn
	sessionID uint8
}

// NewEgress builds an Egress that connects outward to addr.
func NewEgress(addr string, m *metrics.Registry) *Egress {
	return &Egress{addr: addr, m: m, state: stateDisconnected}
}

// Run drains blocks until the channel is closed, driving the state
// machine one block at a time.
func (e *Egress) Run(blocks <-chan Block) {
	for b := range blocks {
		e.handle(b)
	}
	if e.conn != nil {
		e.conn.Close()
	}
}

// dial blocks, retrying every reconnectBackoff, until a downstream
// connection succeeds.
func (e *Egress) dial() net.Conn {
	for {
		conn, err := net.Dial("tcp", e.addr)
		if err == nil {
			log.Printf("egress connected to %s", e.addr)
			return conn
		}
		log.Printf("egress connect to %s failed, retrying: %v", e.addr, err)
		time.Sleep(reconnectBackoff)
	}
}

func (e *Egress) handle(b Block) {
	if e.state == stateDisconnected {
		e.conn = e.dial()
		e.state = stateAwaitingStart
	}

	if e.state == stateAwaitingStart {
		if !b.Start {
			e.m.RxSkipBlock.Inc()
			return
		}
		e.sessionID = b.SessionID
		e.state = stateStreaming
	}

	// state == stateStreaming from here on.
	if b.SessionID != e.sessionID {
		if !b.Start {
			// A block from a different session with no Start: the new
			// session hasn't begun yet from this block's point of view.
			// Stay connected, wait for its own Start.
			e.state = stateAwaitingStart
			e.m.RxSkipBlock.Inc()
			return
		}
		// A new session has begun mid-stream (sender restarted). Close and
		// reconnect, then deliver this block as the new session's first.
		log.Printf("egress: new session %d observed while streaming session %d, reconnecting", b.SessionID, e.sessionID)
		e.conn.Close()
		e.conn = e.dial()
		e.sessionID = b.SessionID
	}

	if b.Data == nil {
		log.Printf("egress: decode failure on session %d block %d, abandoning session", b.SessionID, b.BlockID)
		e.conn.Close()
		e.state = stateDisconnected
		return
	}

	if _, err := e.conn.Write(b.Data); err != nil {
		log.Printf("egress: tcp write failed on session %d: %v", b.SessionID, err)
		e.m.RxTCPBlocksErr.Inc()
		e.conn.Close()
		e.state = stateDisconnected
		return
	}
	e.m.RxTCPBlocks.Inc()
	e.m.RxTCPBytes.Add(float64(len(b.Data)))

	if b.End {
		e.conn.Close()
		e.state = stateDisconnected
	}
}
