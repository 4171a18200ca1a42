package sender

import (
	"io"
	"log"
	"net"

	"github.com/diodelink/diode/fec"
	"github.com/diodelink/diode/metrics"
	"github.com/diodelink/diode/protocol"
	"github.com/diodelink/diode/throttle"
)

// RunIngress accepts TCP clients one at a time from listener forever,
// streaming each one's bytes through codec and the dispatcher as blocks.
// It never returns except on a fatal listener error, matching the
// original's top-level accept loop in client/main.go-style "accept, serve,
// accept again" shape.
//
// maxBandwidthBitsPerSec is 0 to disable rate limiting (spec.md's optional
// max_bandwidth).
func RunIngress(listener net.Listener, disp *Dispatcher, codec *fec.Codec, m *metrics.Registry, maxBandwidthBitsPerSec float64) error {
	sessionID := protocol.FirstSessionID
	transferLength := codec.TransferLength()

	for {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		log.Printf("accepted tcp ingress connection from %s, session %d", conn.RemoteAddr(), sessionID)
		m.TxSessions.Inc()

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			ConfigureReceiveBuffer(tcpConn, transferLength)
		}

		var thr *throttle.Throttle
		if maxBandwidthBitsPerSec > 0 {
			thr = throttle.New(maxBandwidthBitsPerSec)
		}

		serveSession(conn, disp, transferLength, sessionID, thr, m)
		conn.Close()

		sessionID = CloseSession(sessionID)
	}
}

// serveSession drains one TCP client to completion (End block emitted or
// read error), dispatching every block it produces.
func serveSession(conn net.Conn, disp *Dispatcher, transferLength int, sessionID uint8, thr *throttle.Throttle, m *metrics.Registry) {
	ingress := NewIngress(conn, transferLength, sessionID, thr)

	for {
		h, payload, ok, err := ingress.Read()
		if !ok {
			if err != nil && err != io.EOF {
				m.TxTCPBlocksErr.Inc()
				log.Printf("tcp ingress read error on session %d: %v", sessionID, err)
			}
			return
		}
		m.TxTCPBlocks.Inc()
		m.TxTCPBytes.Add(float64(len(payload)))
		disp.Dispatch(h, payload)

		if h.Has(protocol.End) {
			return
		}
	}
}
