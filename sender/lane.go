package sender

import (
	"log"

	"github.com/diodelink/diode/fec"
	"github.com/diodelink/diode/metrics"
	"github.com/diodelink/diode/protocol"
	"github.com/diodelink/diode/transport"
)

// lane is one encoder/sender worker (C7): it owns a single UDP socket and
// FEC-encodes every block handed to it from the dispatcher's round-robin
// mailbox, then emits every resulting packet on that socket. Ported from
// send/mod.rs::start_encoder_sender.
type lane struct {
	index  int
	codec  *fec.Codec
	socket *transport.Socket
	mbox   <-chan blockMsg
	m      *metrics.Registry
}

func newLane(index int, codec *fec.Codec, socket *transport.Socket, mbox <-chan blockMsg, m *metrics.Registry) *lane {
	return &lane{index: index, codec: codec, socket: socket, mbox: mbox, m: m}
}

// run consumes blocks until mbox is closed. Every packet send error is
// counted, never retried: there is no back channel to request a resend.
func (l *lane) run() {
	for msg := range l.mbox {
		if len(msg.payload) == 0 {
			continue
		}
		packets, err := l.codec.Encode(msg.payload)
		if err != nil {
			l.m.TxEncodingBlocksErr.Inc()
			log.Printf("lane %d: fec encode failed for session %d block %d: %v", l.index, msg.header.SessionID, msg.header.BlockID, err)
			continue
		}
		l.m.TxEncodingBlocks.Inc()

		h := msg.header
		for _, pkt := range packets {
			err := l.socket.Send(h, pkt)
			h.Seq++
			if err != nil {
				l.m.TxUDPPktsErr.Inc()
				l.m.TxUDPBytesErr.Add(float64(len(pkt)))
				continue
			}
			l.m.TxUDPPkts.Inc()
			l.m.TxUDPBytes.Add(float64(len(pkt)))
		}
	}
}
