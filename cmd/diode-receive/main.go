// Command diode-receive is the receiving half of the diode bridge: it
// listens on one or more UDP lanes, reassembles and FEC-decodes blocks, and
// replays the reconstructed byte stream onto a downstream TCP connection.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/diodelink/diode/fec"
	"github.com/diodelink/diode/metrics"
	"github.com/diodelink/diode/protocol"
	"github.com/diodelink/diode/receiver"
	"github.com/diodelink/diode/transport"
)

// VERSION is injected by buildflags, following the teacher's convention.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "diode-receive"
	myApp.Usage = "receiving side of a one-way UDP data diode"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.Uint64Flag{
			Name:  "encoding_block_size",
			Value: 60000,
			Usage: "FEC block size in bytes, must match the sender",
		},
		cli.IntFlag{
			Name:  "repair_block_size",
			Value: 6000,
			Usage: "FEC repair budget in bytes per block, must match the sender",
		},
		cli.StringFlag{
			Name:  "udp_addr",
			Value: "0.0.0.0",
			Usage: "local address to bind the UDP lanes on",
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
			Usage: "expected heartbeat interval in milliseconds, must match the sender",
		},
		cli.StringFlag{
			Name:  "to_tcp",
			Value: "127.0.0.1:7000",
			Usage: "downstream TCP address to replay the reconstructed stream onto",
		},
		cli.IntFlag{
			Name:  "block_expiration_timeout",
			Value: 0,
			Usage: "milliseconds a partial block may wait before being force-popped; 0 defaults to heartbeat",
		},
		cli.IntFlag{
			Name:  "session_expiration_timeout",
			Value: 0,
			Usage: "milliseconds pending state may wait before outright eviction; 0 defaults to 5x heartbeat",
		},
		cli.StringFlag{
			Name:  "core_affinity",
			Value: "",
			Usage: "comma-separated list of CPU core ids, one per UDP reader, empty to disable pinning",
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
		EncodingBlockSize:          c.Uint64("encoding_block_size"),
		RepairBlockSize:            uint32(c.Int("repair_block_size")),
		UDPAddr:                    c.String("udp_addr"),
		UDPPort:                    parsePorts(c.String("udp_port")),
		UDPMTU:                     c.Int("udp_mtu"),
		HeartbeatMs:                c.Int("heartbeat"),
		ToTCP:                      c.String("to_tcp"),
		BlockExpirationTimeoutMs:   c.Int("block_expiration_timeout"),
		SessionExpirationTimeoutMs: c.Int("session_expiration_timeout"),
		CoreAffinity:               parsePorts(c.String("core_affinity")),
		Metrics:                    c.String("metrics"),
	}

	if path := c.String("c"); path != "" {
		checkError(parseJSONConfig(&config, path))
	}

	if config.BlockExpirationTimeoutMs <= 0 {
		config.BlockExpirationTimeoutMs = config.HeartbeatMs
	}
	if config.SessionExpirationTimeoutMs <= 0 {
		config.SessionExpirationTimeoutMs = 5 * config.HeartbeatMs
	}

	checkError(validate(&config))

	log.Printf("version: %s", VERSION)
	log.Printf("encoding_block_size=%d repair_block_size=%d udp_mtu=%d lanes=%v",
		config.EncodingBlockSize, config.RepairBlockSize, config.UDPMTU, config.UDPPort)

	m := metrics.New()
	m.Serve(config.Metrics)
	if config.Metrics != "" {
		go m.SampleSNMP(context.Background(), 5*time.Second)
	}

	codec, err := fec.NewCodec(config.EncodingBlockSize, uint16(config.UDPMTU), config.RepairBlockSize)
	checkError(err)

	sockets := make([]*transport.Socket, len(config.UDPPort))
	for i, port := range config.UDPPort {
		bindAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(config.UDPAddr, strconv.Itoa(port)))
		checkError(err)
		sock, err := transport.NewSocket(bindAddr, nil, uint16(config.UDPMTU), int(config.EncodingBlockSize), transport.RoleRecv)
		checkError(err)
		sockets[i] = sock
	}

	cfg := receiver.Config{
		ToTCPAddr:                config.ToTCP,
		BlockExpirationTimeout:   time.Duration(config.BlockExpirationTimeoutMs) * time.Millisecond,
		SessionExpirationTimeout: time.Duration(config.SessionExpirationTimeoutMs) * time.Millisecond,
		HeartbeatInterval:        time.Duration(config.HeartbeatMs) * time.Millisecond,
		CoreAffinity:             config.CoreAffinity,
		LocalParams: protocol.LidiParameters{
			EncodingBlockSize:   config.EncodingBlockSize,
			RepairBlockSize:     config.RepairBlockSize,
			HeartbeatIntervalMs: uint32(config.HeartbeatMs),
			UDPMTU:              uint16(config.UDPMTU),
			NbThreads:           uint8(len(sockets)),
		},
	}

	receiver.Run(sockets, codec, cfg, m)
	return nil
}

func parsePorts(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func validate(c *Config) error {
	if c.UDPMTU > 9000 {
		return fmt.Errorf("udp_mtu %d exceeds the maximum of 9000", c.UDPMTU)
	}
	if len(c.UDPPort) == 0 {
		return fmt.Errorf("udp_port must list at least one port")
	}
	seenPorts := make(map[int]bool, len(c.UDPPort))
	for _, p := range c.UDPPort {
		if seenPorts[p] {
			return fmt.Errorf("duplicate udp_port %d", p)
		}
		seenPorts[p] = true
	}
	if len(c.CoreAffinity) > 0 {
		if len(c.CoreAffinity) != len(c.UDPPort) {
			return fmt.Errorf("core_affinity length %d must equal udp_port length %d", len(c.CoreAffinity), len(c.UDPPort))
		}
		seenCores := make(map[int]bool, len(c.CoreAffinity))
		nb := runtime.NumCPU()
		for _, core := range c.CoreAffinity {
			if core < 0 || core >= nb {
				return fmt.Errorf("core_affinity id %d is out of range (0..%d)", core, nb-1)
			}
			if seenCores[core] {
				return fmt.Errorf("duplicate core_affinity id %d", core)
			}
			seenCores[core] = true
		}
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
