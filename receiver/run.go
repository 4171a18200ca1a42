package receiver

import (
	"log"
	"time"

	"github.com/diodelink/diode/fec"
	"github.com/diodelink/diode/metrics"
	"github.com/diodelink/diode/protocol"
	"github.com/diodelink/diode/transport"
)

// logParamMismatch warns (but never fails) when the sender's published
// LidiParameters differ from this receiver's own configuration — the
// receiver trusts the sender's framing regardless (spec.md §4.12/§7).
func logParamMismatch(remote, local protocol.LidiParameters) {
	log.Printf("warning: sender LidiParameters %+v differ from local configuration %+v", remote, local)
}

// Config bundles the receiver's runtime tunables, mirroring the
// receiver-only options of spec.md §6.
type Config struct {
	ToTCPAddr                string
	BlockExpirationTimeout   time.Duration
	SessionExpirationTimeout time.Duration
	HeartbeatInterval        time.Duration
	ReorderChanSize          int
	LocalParams              protocol.LidiParameters

	// CoreAffinity optionally pins UDP reader goroutine i to CoreAffinity[i],
	// one entry per socket. A shorter (or nil) slice leaves the remaining
	// readers unpinned.
	CoreAffinity []int
}

// Run wires C8 (one UDP reader goroutine per socket) through C9/C10 (the
// reorder+decode goroutine) into C12 (the egress state machine goroutine).
// It blocks until the process is torn down; diode-receive's main calls it
// directly as its last step.
func Run(sockets []*transport.Socket, codec *fec.Codec, cfg Config, m *metrics.Registry) {
	chanSize := cfg.ReorderChanSize
	if chanSize <= 0 {
		chanSize = ReorderChanSize
	}
	packets := make(chan packetMsg, chanSize)
	blocks := make(chan Block, 1000)

	for i, sock := range sockets {
		coreID := -1
		if i < len(cfg.CoreAffinity) {
			coreID = cfg.CoreAffinity[i]
		}
		go RunUDPReader(i, sock, packets, m, coreID)
	}

	go reorderDecodeLoop(packets, blocks, codec, cfg, m)

	egress := NewEgress(cfg.ToTCPAddr, m)
	egress.Run(blocks)
}

// reorderDecodeLoop is C9+C10+C11 combined into a single goroutine: the
// reorder buffer has no internal concurrency (spec.md §5: "pending-block
// tables live exclusively in C9"), so one goroutine owns it, pulling
// packets off the channel with a timeout equal to the block expiration
// window and periodically sweeping for blocks that have expired outright.
func reorderDecodeLoop(packets <-chan packetMsg, blocks chan<- Block, codec *fec.Codec, cfg Config, m *metrics.Registry) {
	buf := NewBuffer(codec.Capacity(), cfg.BlockExpirationTimeout)
	buf.SetSessionExpiration(cfg.SessionExpirationTimeout)
	hb := NewHeartbeatMonitor(2 * cfg.HeartbeatInterval)

	timer := time.NewTimer(buf.BlockExpirationTimeout())
	defer timer.Stop()

	for {
		select {
		case pkt, ok := <-packets:
			if !ok {
				close(blocks)
				return
			}

			if pkt.header.Has(protocol.Init) {
				buf.Init(pkt.header)
				if params, err := protocol.DeserializeLidiParameters(pkt.payload); err == nil {
					if !params.Equal(cfg.LocalParams) {
						logParamMismatch(params, cfg.LocalParams)
					}
				}
				continue
			}
			if pkt.header.Has(protocol.Heartbeat) {
				hb.Update()
				continue
			}

			popped, ok := buf.Push(pkt.header, int(pkt.header.Seq), pkt.payload)
			if ok {
				m.RxPopOkPackets.Inc()
				blocks <- decodeBlock(codec, m, popped)
			} else {
				m.RxPopOkNone.Inc()
			}

		case <-timer.C:
			hb.Check()
			expired := buf.Expired(time.Now())
			if len(expired) == 0 {
				m.RxPopTimeoutNone.Inc()
			}
			for _, popped := range expired {
				m.RxPopTimeoutWithPackets.Inc()
				blocks <- decodeBlock(codec, m, popped)
			}
			timer.Reset(buf.BlockExpirationTimeout())
		}
	}
}
