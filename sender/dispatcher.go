package sender

import (
	"time"

	"github.com/diodelink/diode/fec"
	"github.com/diodelink/diode/metrics"
	"github.com/diodelink/diode/protocol"
	"github.com/diodelink/diode/transport"
)

// mailboxSize is the per-lane channel capacity, matching the crossbeam
// bounded-channel sizing in the original send/mod.rs.
const mailboxSize = 1000

// Dispatcher owns one lane per configured UDP port and round-robins every
// block across them, following send/mod.rs's thread layout: one goroutine
// per lane plus one heartbeat goroutine, all sharing lane 0's socket for
// control datagrams (Init, Heartbeat).
type Dispatcher struct {
	sockets []*transport.Socket
	mboxes  []chan blockMsg
	next    int
	m       *metrics.Registry
}

// NewDispatcher launches nbThreads encoder/sender lanes, one per socket,
// and returns a Dispatcher ready to accept blocks via Dispatch.
func NewDispatcher(sockets []*transport.Socket, codec *fec.Codec, m *metrics.Registry) *Dispatcher {
	d := &Dispatcher{
		sockets: sockets,
		mboxes:  make([]chan blockMsg, len(sockets)),
		m:       m,
	}
	for i, sock := range sockets {
		ch := make(chan blockMsg, mailboxSize)
		d.mboxes[i] = ch
		l := newLane(i, codec, sock, ch, m)
		go l.run()
	}
	return d
}

// SendInit transmits the one-time Init datagram (LidiParameters, on lane
// 0's socket) that precedes any data, so the receiver can validate its own
// configuration before decoding anything.
func (d *Dispatcher) SendInit(params protocol.LidiParameters) error {
	h := protocol.Header{MessageType: protocol.Init}
	payload := params.Serialize()
	return d.sockets[0].Send(h, payload[:])
}

// StartHeartbeat launches the heartbeat goroutine: an empty Heartbeat
// datagram sent on lane 0's socket every interval, for as long as stop is
// open. Callers close stop to end the loop at shutdown (there is none in
// steady-state operation).
func (d *Dispatcher) StartHeartbeat(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		h := protocol.Header{MessageType: protocol.Heartbeat}
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = d.sockets[0].Send(h, nil)
			}
		}
	}()
}

// Dispatch hands one block to the next lane in round-robin order. The send
// blocks if that lane's mailbox is full: unlike the UDP-facing channels,
// there is no "drop and count" fallback here — backpressure instead flows
// back into the TCP ingress read loop, which is the only safe place to
// absorb a temporarily slow lane.
func (d *Dispatcher) Dispatch(h protocol.Header, payload []byte) {
	d.mboxes[d.next] <- blockMsg{header: h, payload: payload}
	d.next = (d.next + 1) % len(d.mboxes)
}

// Close closes every lane's mailbox, letting each lane goroutine drain and
// exit.
func (d *Dispatcher) Close() {
	for _, ch := range d.mboxes {
		close(ch)
	}
}
