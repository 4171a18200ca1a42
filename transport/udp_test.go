package transport

import (
	"net"
	"testing"

	"github.com/diodelink/diode/protocol"
)

func TestSendRecvRoundTrip(t *testing.T) {
	rxAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
	rx, err := NewSocket(rxAddr, nil, 1500, 1024, RoleRecv)
	if err != nil {
		t.Fatalf("NewSocket(rx): %v", err)
	}
	defer rx.Close()

	localRxAddr := rx.conn.LocalAddr().(*net.UDPAddr)

	txAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
	tx, err := NewSocket(txAddr, localRxAddr, 1500, 1024, RoleSend)
	if err != nil {
		t.Fatalf("NewSocket(tx): %v", err)
	}
	defer tx.Close()

	h := protocol.Header{MessageType: protocol.Data, SessionID: 1, BlockID: 2, Seq: 3}
	payload := []byte("hello diode")
	if err := tx.Send(h, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, protocol.MaxMTU)
	n, err := rx.Recv(buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	gotHeader, err := protocol.DeserializeHeader(buf[:n])
	if err != nil {
		t.Fatalf("DeserializeHeader: %v", err)
	}
	if gotHeader != h {
		t.Errorf("header mismatch: got %+v, want %+v", gotHeader, h)
	}
	gotPayload := buf[protocol.HeaderSize:n]
	if string(gotPayload) != string(payload) {
		t.Errorf("payload mismatch: got %q, want %q", gotPayload, payload)
	}
}

func TestMTU(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
	s, err := NewSocket(addr, nil, 1400, 1024, RoleRecv)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer s.Close()
	if s.MTU() != 1400 {
		t.Errorf("MTU() = %d, want 1400", s.MTU())
	}
}
