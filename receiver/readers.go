package receiver

import (
	"log"
	"net"

	"github.com/diodelink/diode/metrics"
	"github.com/diodelink/diode/protocol"
	"github.com/diodelink/diode/transport"
)

// packetMsg is one deserialized UDP datagram, handed from a reader
// goroutine to the reorder+decode goroutine.
type packetMsg struct {
	header  protocol.Header
	payload []byte
}

// ReorderChanSize is the default capacity of the UDP-to-reorder channel
// (spec.md §5): large enough to absorb a burst without the reader
// goroutines ever blocking on a slow reorder stage, since blocking there
// would lose datagrams sitting in the kernel's receive buffer instead.
const ReorderChanSize = 10000

// RunUDPReader reads datagrams from socket forever, deserializes the
// header, and pushes onto out. A full channel drops the packet (never
// blocks); a malformed header drops the packet. Both are counted.
// Ported from receive/mod.rs::udp_read_loop. coreID pins this goroutine's
// OS thread to that core when >= 0 (the optional core_affinity setting);
// -1 disables pinning. Pinning must happen on this goroutine, since
// PinToCore affects only the calling goroutine's locked OS thread.
func RunUDPReader(index int, socket *transport.Socket, out chan<- packetMsg, m *metrics.Registry, coreID int) {
	if coreID >= 0 {
		if err := PinToCore(coreID); err != nil {
			log.Printf("udp reader %d: cannot pin to core %d: %v", index, coreID, err)
		}
	}

	buf := make([]byte, protocol.MaxMTU)
	for {
		n, err := socket.Recv(buf)
		if err != nil {
			m.RxUDPRecvPktsErr.Inc()
			if isPermanent(err) {
				log.Printf("udp reader %d: permanent error, stopping: %v", index, err)
				return
			}
			continue
		}
		m.RxUDPPkts.Inc()
		m.RxUDPBytes.Add(float64(n))

		h, err := protocol.DeserializeHeader(buf[:n])
		if err != nil {
			m.RxUDPDeserializeHeaderErr.Inc()
			continue
		}

		payload := make([]byte, n-protocol.HeaderSize)
		copy(payload, buf[protocol.HeaderSize:n])

		select {
		case out <- packetMsg{header: h, payload: payload}:
		default:
			m.RxUDPSendReorderErr.Inc()
		}
	}
}

func isPermanent(err error) bool {
	ne, ok := err.(net.Error)
	return ok && !ne.Timeout()
}
