package receiver

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/diodelink/diode/metrics"
)

// listenOnce accepts exactly one connection on an ephemeral port and hands
// every byte it reads back on the returned channel, closing it when the
// connection closes.
func listenOnce(t *testing.T) (addr string, received <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	out := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(out)
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		var buf []byte
		tmp := make([]byte, 4096)
		for {
			n, err := r.Read(tmp)
			if n > 0 {
				buf = append(buf, tmp[:n]...)
			}
			if err != nil {
				break
			}
		}
		out <- buf
	}()
	return ln.Addr().String(), out
}

func TestEgressDeliversStreamInOrder(t *testing.T) {
	addr, received := listenOnce(t)
	e := NewEgress(addr, metrics.New())

	blocks := make(chan Block, 4)
	blocks <- Block{SessionID: 1, BlockID: 0, Data: []byte("hello "), Start: true}
	blocks <- Block{SessionID: 1, BlockID: 1, Data: []byte("world"), End: true}
	close(blocks)

	e.Run(blocks)

	select {
	case got := <-received:
		if string(got) != "hello world" {
			t.Fatalf("got %q, want %q", got, "hello world")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for egress bytes")
	}
}

func TestEgressDropsBlocksBeforeStart(t *testing.T) {
	addr, received := listenOnce(t)
	e := NewEgress(addr, metrics.New())

	blocks := make(chan Block, 3)
	blocks <- Block{SessionID: 1, BlockID: 5, Data: []byte("skip me")}
	blocks <- Block{SessionID: 1, BlockID: 6, Data: []byte("first"), Start: true}
	blocks <- Block{SessionID: 1, BlockID: 7, Data: []byte("second"), End: true}
	close(blocks)

	e.Run(blocks)

	select {
	case got := <-received:
		if string(got) != "firstsecond" {
			t.Fatalf("got %q, want %q", got, "firstsecond")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for egress bytes")
	}
}

func TestEgressReconnectsOnNewSessionStart(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	type conn struct {
		data []byte
	}
	results := make(chan conn, 2)
	go func() {
		for i := 0; i < 2; i++ {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				var got []byte
				for {
					n, err := c.Read(buf)
					if n > 0 {
						got = append(got, buf[:n]...)
					}
					if err != nil {
						break
					}
				}
				results <- conn{data: got}
			}(c)
		}
	}()

	e := NewEgress(ln.Addr().String(), metrics.New())
	blocks := make(chan Block, 2)
	blocks <- Block{SessionID: 1, BlockID: 0, Data: []byte("first session"), Start: true}
	blocks <- Block{SessionID: 2, BlockID: 0, Data: []byte("second session"), Start: true, End: true}
	close(blocks)

	e.Run(blocks)

	var gotFirst, gotSecond bool
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			switch string(r.data) {
			case "first session":
				gotFirst = true
			case "second session":
				gotSecond = true
			default:
				t.Fatalf("unexpected connection payload %q", r.data)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for both downstream connections")
		}
	}
	if !gotFirst || !gotSecond {
		t.Fatalf("expected two distinct downstream connections, got first=%v second=%v", gotFirst, gotSecond)
	}
}

func TestEgressAbandonsSessionOnDecodeFailure(t *testing.T) {
	addr, received := listenOnce(t)
	m := metrics.New()
	e := NewEgress(addr, m)

	blocks := make(chan Block, 3)
	blocks <- Block{SessionID: 1, BlockID: 0, Data: []byte("ok"), Start: true}
	blocks <- Block{SessionID: 1, BlockID: 1, Data: nil} // decode failure
	close(blocks)

	e.Run(blocks)

	select {
	case got := <-received:
		if string(got) != "ok" {
			t.Fatalf("got %q, want %q", got, "ok")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for egress bytes")
	}
}
