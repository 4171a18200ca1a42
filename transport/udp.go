// Package transport provides the UDP datagram socket this bridge sends and
// receives diode packets over, including the receive/send buffer sizing
// heuristic ported from the original diode's udp.rs.
package transport

import (
	"log"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/diodelink/diode/protocol"
)

// Socket wraps a *net.UDPConn with the header+payload framing every
// diode datagram uses, and the buffer-size-on-bind behavior the original
// implementation performs in Udp::new.
type Socket struct {
	conn   *net.UDPConn
	mtu    uint16
	buffer []byte
}

// Role names used only in log lines, matching the original's role parameter
// ("source"/"repair"/"rx"/etc. depending on call site).
const (
	RoleSend = "send"
	RoleRecv = "recv"
)

// NewSocket binds a UDP socket at bind. If remote is non-nil the socket is
// additionally connected to remote (so Send/Recv can use the connected-mode
// syscalls); otherwise it is left unconnected for use as a plain receiver
// across many peers. minBufSize is the size (bytes) the effective socket
// buffer is checked against: a buffer under 5x minBufSize logs a warning,
// since the kernel may silently refuse to grow SO_RCVBUF/SO_SNDBUF to the
// sender's requested FEC block size.
func NewSocket(bind *net.UDPAddr, remote *net.UDPAddr, udpMTU uint16, minBufSize int, role string) (*Socket, error) {
	conn, err := net.ListenUDP("udp", bind)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot bind udp socket %s", bind)
	}

	if remote != nil {
		log.Printf("sending UDP %s packets to %s with MTU %d", role, remote, udpMTU)
	} else {
		log.Printf("listening for UDP packets at %s with MTU %d", bind, udpMTU)
	}

	if err := growReadBuffer(conn, minBufSize); err != nil {
		log.Printf("warning: cannot grow recv buffer on %s: %v", bind, err)
	}

	if remote != nil {
		if err := conn.Close(); err != nil {
			return nil, errors.Wrap(err, "cannot close listening socket before connect")
		}
		dialed, err := net.DialUDP("udp", bind, remote)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot connect udp socket %s to %s", bind, remote)
		}
		conn = dialed
		if err := growWriteBuffer(conn, minBufSize); err != nil {
			log.Printf("warning: cannot grow send buffer on %s: %v", bind, err)
		}
	}

	return &Socket{
		conn:   conn,
		mtu:    udpMTU,
		buffer: make([]byte, udpMTU),
	}, nil
}

// growReadBuffer asks the kernel for the largest receive buffer it will
// allow, then reads back the effective value via a raw syscall (stdlib's
// SetReadBuffer silently clamps rather than erroring, so there is no other
// portable way to learn what actually took effect) and warns if it falls
// short of 5x minBufSize — the same heuristic and threshold the original
// implementation uses around net.core.rmem_max.
func growReadBuffer(conn *net.UDPConn, minBufSize int) error {
	const requestSize = 1 << 30 // intentionally oversized; kernel clamps to net.core.rmem_max
	if err := conn.SetReadBuffer(requestSize); err != nil {
		return err
	}
	effective, err := effectiveBufferSize(conn, unix.SO_RCVBUF)
	if err != nil {
		return err
	}
	log.Printf("UDP socket receive buffer size set to %d", effective)
	if effective < 5*minBufSize {
		log.Printf("warning: UDP socket recv buffer is too small to achieve optimal performance")
		log.Printf("warning: consider raising it via sysctl -w net.core.rmem_max")
	}
	return nil
}

func growWriteBuffer(conn *net.UDPConn, minBufSize int) error {
	const requestSize = 1 << 30
	if err := conn.SetWriteBuffer(requestSize); err != nil {
		return err
	}
	effective, err := effectiveBufferSize(conn, unix.SO_SNDBUF)
	if err != nil {
		return err
	}
	log.Printf("UDP socket send buffer size set to %d", effective)
	return nil
}

// effectiveBufferSize reads back SO_RCVBUF/SO_SNDBUF via getsockopt,
// reaching into the connection's raw file descriptor the way
// runZeroInc-sockstats's ControlContextFn does for its own socket
// instrumentation.
func effectiveBufferSize(conn *net.UDPConn, optname int) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var size int
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		size, sockErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, optname)
	})
	if err != nil {
		return 0, err
	}
	if sockErr != nil {
		return 0, sockErr
	}
	// Linux reports double the configured value (kernel accounting
	// overhead); halve it so the figure reflects usable payload capacity.
	return size / 2, nil
}

// Send writes header followed by payload as a single UDP datagram.
func (s *Socket) Send(h protocol.Header, payload []byte) error {
	hdr := h.Serialize()
	n := copy(s.buffer, hdr[:])
	n += copy(s.buffer[n:], payload)
	_, err := s.conn.Write(s.buffer[:n])
	return err
}

// SendTo writes header followed by payload to addr, for a socket that is
// not connect()ed to a single peer.
func (s *Socket) SendTo(h protocol.Header, payload []byte, addr *net.UDPAddr) error {
	hdr := h.Serialize()
	n := copy(s.buffer, hdr[:])
	n += copy(s.buffer[n:], payload)
	_, err := s.conn.WriteToUDP(s.buffer[:n], addr)
	return err
}

// Recv reads one datagram into buf, which must be at least MTU bytes.
func (s *Socket) Recv(buf []byte) (int, error) {
	return s.conn.Read(buf)
}

// MTU returns the configured MTU.
func (s *Socket) MTU() uint16 { return s.mtu }

// Close closes the underlying socket.
func (s *Socket) Close() error { return s.conn.Close() }
