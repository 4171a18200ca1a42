// Package metrics exposes the diode's counters and gauges over Prometheus,
// replacing the original implementation's metrics_exporter_prometheus
// wiring (see lib.rs::init_metrics and receive/stats.rs) with
// github.com/prometheus/client_golang, the way
// runZeroInc-sockstats instruments its own sockets.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/procfs"
)

// Registry owns every counter and gauge this bridge exports. Both the
// sender and receiver binaries construct one (most counters are only ever
// touched by one side, but sharing the type keeps naming consistent).
type Registry struct {
	reg *prometheus.Registry

	TxSessions          prometheus.Counter
	TxTCPBlocks         prometheus.Counter
	TxTCPBlocksErr      prometheus.Counter
	TxTCPBytes          prometheus.Counter
	TxTCPBytesErr       prometheus.Counter
	TxEncodingBlocks    prometheus.Counter
	TxEncodingBlocksErr prometheus.Counter
	TxUDPPkts           prometheus.Counter
	TxUDPPktsErr        prometheus.Counter
	TxUDPBytes          prometheus.Counter
	TxUDPBytesErr       prometheus.Counter

	RxUDPPkts                  prometheus.Counter
	RxUDPBytes                 prometheus.Counter
	RxUDPRecvPktsErr           prometheus.Counter
	RxUDPSendReorderErr        prometheus.Counter
	RxUDPDeserializeHeaderErr  prometheus.Counter
	RxPopOkNone                prometheus.Counter
	RxPopOkPackets             prometheus.Counter
	RxPopTimeoutNone           prometheus.Counter
	RxPopTimeoutWithPackets    prometheus.Counter
	RxDecodingBlocks           prometheus.Counter
	RxDecodingBlocksErr        prometheus.Counter
	RxTCPBlocks                prometheus.Counter
	RxTCPBlocksErr             prometheus.Counter
	RxTCPBytes                 prometheus.Counter
	RxTCPBytesErr              prometheus.Counter
	RxSkipBlock                prometheus.Counter

	SNMPIPInDiscards prometheus.Gauge
	SNMPUDPInErrors  prometheus.Gauge
}

// New builds a Registry with every metric registered under the "diode"
// namespace.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "diode",
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "diode",
			Name:      name,
			Help:      help,
		})
	}

	return &Registry{
		reg: reg,

		TxSessions:          counter("tx_sessions", "TCP sessions accepted by the sender ingress."),
		TxTCPBlocks:         counter("tx_tcp_blocks", "Blocks successfully read from the TCP ingress."),
		TxTCPBlocksErr:      counter("tx_tcp_blocks_err", "TCP ingress read errors."),
		TxTCPBytes:          counter("tx_tcp_bytes", "Bytes read from the TCP ingress."),
		TxTCPBytesErr:       counter("tx_tcp_bytes_err", "Bytes lost to TCP ingress read errors."),
		TxEncodingBlocks:    counter("tx_encoding_blocks", "Blocks successfully FEC-encoded."),
		TxEncodingBlocksErr: counter("tx_encoding_blocks_err", "Blocks that failed FEC encoding."),
		TxUDPPkts:           counter("tx_udp_pkts", "UDP packets sent."),
		TxUDPPktsErr:        counter("tx_udp_pkts_err", "UDP packet send errors."),
		TxUDPBytes:          counter("tx_udp_bytes", "UDP bytes sent."),
		TxUDPBytesErr:       counter("tx_udp_bytes_err", "UDP bytes lost to send errors."),

		RxUDPPkts:                 counter("rx_udp_pkts", "UDP packets received."),
		RxUDPBytes:                counter("rx_udp_bytes", "UDP bytes received."),
		RxUDPRecvPktsErr:          counter("rx_udp_recv_pkts_err", "UDP receive errors."),
		RxUDPSendReorderErr:       counter("rx_udp_send_reorder_err", "Packets dropped because the reorder channel was full."),
		RxUDPDeserializeHeaderErr: counter("rx_udp_deserialize_header_err", "Packets dropped for a malformed header."),
		RxPopOkNone:               counter("rx_pop_ok_none", "Reorder pushes that did not complete a block."),
		RxPopOkPackets:            counter("rx_pop_ok_packets", "Reorder pushes that completed a block."),
		RxPopTimeoutNone:          counter("rx_pop_timeout_none", "Reorder timeouts with no expired block."),
		RxPopTimeoutWithPackets:   counter("rx_pop_timeout_with_packets", "Reorder timeouts that expired a partial block."),
		RxDecodingBlocks:          counter("rx_decoding_blocks", "Blocks successfully FEC-decoded."),
		RxDecodingBlocksErr:       counter("rx_decoding_blocks_err", "Blocks that failed FEC decoding."),
		RxTCPBlocks:               counter("rx_tcp_blocks", "Blocks written to the TCP egress."),
		RxTCPBlocksErr:            counter("rx_tcp_blocks_err", "TCP egress write errors."),
		RxTCPBytes:                counter("rx_tcp_bytes", "Bytes written to the TCP egress."),
		RxTCPBytesErr:             counter("rx_tcp_bytes_err", "Bytes lost to TCP egress write errors."),
		RxSkipBlock:               counter("rx_skip_block", "Blocks discarded because their session was corrupted or unrecoverable."),

		SNMPIPInDiscards: gauge("snmp_ip_in_discards", "Host-wide IP datagrams discarded, sampled from /proc/net/snmp."),
		SNMPUDPInErrors:  gauge("snmp_udp_in_errors", "Host-wide UDP receive errors, sampled from /proc/net/snmp."),
	}
}

// Serve starts a background HTTP server exposing /metrics on addr and
// returns immediately. It logs and gives up (without crashing the process)
// if the listener cannot be created, matching the original's "metrics
// endpoint is optional" behavior.
func (r *Registry) Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server on %s stopped: %v", addr, err)
		}
	}()
}

// SampleSNMP periodically reads /proc/net/snmp's IP.InDiscards and
// Udp.InErrors counters into gauges, the Go analogue of the original's
// stats_proc_snmp. It returns when ctx is cancelled. Per-thread CPU
// accounting (stats_thread_usage in the original) has no Go equivalent and
// is intentionally not implemented — see DESIGN.md.
func (r *Registry) SampleSNMP(ctx context.Context, interval time.Duration) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		log.Printf("snmp sampling disabled: %v", err)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snmp, err := fs.NetSNMP()
			if err != nil {
				log.Printf("snmp sample failed: %v", err)
				continue
			}
			if snmp.IP.InDiscards != nil {
				r.SNMPIPInDiscards.Set(*snmp.IP.InDiscards)
			}
			if snmp.Udp.InErrors != nil {
				r.SNMPUDPInErrors.Set(*snmp.Udp.InErrors)
			}
		}
	}
}
