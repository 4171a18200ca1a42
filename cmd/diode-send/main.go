// Command diode-send is the sending half of the diode bridge: it accepts
// one TCP client at a time and streams its byte stream, FEC-encoded, over
// one-way UDP lanes to a diode-receive process. No packet ever flows back.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/diodelink/diode/fec"
	"github.com/diodelink/diode/metrics"
	"github.com/diodelink/diode/protocol"
	"github.com/diodelink/diode/sender"
	"github.com/diodelink/diode/transport"
)

// VERSION is injected by buildflags, following the teacher's convention.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "diode-send"
	myApp.Usage = "sending side of a one-way UDP data diode"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.Uint64Flag{
			Name:  "encoding_block_size",
			Value: 60000,
			Usage: "FEC block size in bytes, must match the receiver",
		},
		cli.IntFlag{
			Name:  "repair_block_size",
			Value: 6000,
			Usage: "FEC repair budget in bytes per block, must match the receiver",
		},
		cli.StringFlag{
			Name:  "udp_addr",
			Value: "127.0.0.1",
			Usage: "receiver's UDP address",
		},
		cli.StringFlag{
			Name:  "udp_port",
			Value: "6000",
			Usage: "comma-separated list of UDP ports, one per lane",
		},
		cli.IntFlag{
			Name:  "udp_mtu",
			Value: 1500,
			Usage: "UDP MTU in bytes, must be <= 9000",
		},
		cli.IntFlag{
			Name:  "heartbeat",
			Value: 500,
			Usage: "heartbeat interval in milliseconds",
		},
		cli.StringFlag{
			Name:  "bind_tcp",
			Value: "127.0.0.1:5000",
			Usage: "TCP address to accept the ingress client on",
		},
		cli.StringFlag{
			Name:  "bind_udp",
			Value: "0.0.0.0:0",
			Usage: "local address the UDP lanes bind to before connecting out",
		},
		cli.Float64Flag{
			Name:  "max_bandwidth",
			Value: 0,
			Usage: "cap outgoing throughput in Mbit/s, 0 to disable",
		},
		cli.StringFlag{
			Name:  "metrics",
			Value: "",
			Usage: "address to serve Prometheus /metrics on, empty to disable",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, overrides the command line",
		},
	}
	myApp.Action = run

	if err := myApp.Run(os.Args); err != nil {
		checkError(err)
	}
}

func run(c *cli.Context) error {
	config := Config{
		EncodingBlockSize: c.Uint64("encoding_block_size"),
		RepairBlockSize:   uint32(c.Int("repair_block_size")),
		UDPAddr:           c.String("udp_addr"),
		UDPPort:           parsePorts(c.String("udp_port")),
		UDPMTU:            c.Int("udp_mtu"),
		HeartbeatMs:       c.Int("heartbeat"),
		BindTCP:           c.String("bind_tcp"),
		BindUDP:           c.String("bind_udp"),
		MaxBandwidth:      c.Float64("max_bandwidth"),
		Metrics:           c.String("metrics"),
	}

	if path := c.String("c"); path != "" {
		checkError(parseJSONConfig(&config, path))
	}

	checkError(validate(&config))

	log.Printf("version: %s", VERSION)
	log.Printf("encoding_block_size=%d repair_block_size=%d udp_mtu=%d lanes=%v",
		config.EncodingBlockSize, config.RepairBlockSize, config.UDPMTU, config.UDPPort)

	m := metrics.New()
	m.Serve(config.Metrics)

	codec, err := fec.NewCodec(config.EncodingBlockSize, uint16(config.UDPMTU), config.RepairBlockSize)
	checkError(err)

	receiverAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(config.UDPAddr, "0"))
	checkError(err)

	sockets := make([]*transport.Socket, len(config.UDPPort))
	for i, port := range config.UDPPort {
		bindAddr, err := net.ResolveUDPAddr("udp", config.BindUDP)
		checkError(err)
		remote := &net.UDPAddr{IP: receiverAddr.IP, Port: port}
		sock, err := transport.NewSocket(bindAddr, remote, uint16(config.UDPMTU), int(config.EncodingBlockSize), transport.RoleSend)
		checkError(err)
		sockets[i] = sock
	}

	disp := sender.NewDispatcher(sockets, codec, m)

	params := protocol.LidiParameters{
		EncodingBlockSize:   config.EncodingBlockSize,
		RepairBlockSize:     config.RepairBlockSize,
		HeartbeatIntervalMs: uint32(config.HeartbeatMs),
		UDPMTU:              uint16(config.UDPMTU),
		NbThreads:           uint8(len(sockets)),
	}
	checkError(disp.SendInit(params))

	stop := make(chan struct{})
	disp.StartHeartbeat(time.Duration(config.HeartbeatMs)*time.Millisecond, stop)

	listener, err := net.Listen("tcp", config.BindTCP)
	checkError(err)
	log.Printf("listening for tcp ingress on %s", listener.Addr())

	maxBandwidthBits := config.MaxBandwidth * 1_000_000
	checkError(sender.RunIngress(listener, disp, codec, m, maxBandwidthBits))
	return nil
}

func parsePorts(s string) []int {
	var ports []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		ports = append(ports, p)
	}
	return ports
}

func validate(c *Config) error {
	if c.UDPMTU > 9000 {
		return fmt.Errorf("udp_mtu %d exceeds the maximum of 9000", c.UDPMTU)
	}
	if len(c.UDPPort) == 0 {
		return fmt.Errorf("udp_port must list at least one port")
	}
	seen := make(map[int]bool, len(c.UDPPort))
	for _, p := range c.UDPPort {
		if seen[p] {
			return fmt.Errorf("duplicate udp_port %d", p)
		}
		seen[p] = true
	}
	return nil
}

// checkError mirrors the teacher's fatal-error convention: print the
// pkg/errors stack trace and exit with a nonzero code.
func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
