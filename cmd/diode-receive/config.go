package main

import (
	"encoding/json"
	"os"
)

// Config holds every receiver-side option from SPEC_FULL.md §6, following
// the sender binary's JSON-overlay pattern: CLI flags populate Config with
// their defaults first, then an optional -c file is decoded on top.
type Config struct {
	EncodingBlockSize uint64 `json:"encoding_block_size"`
	RepairBlockSize   uint32 `json:"repair_block_size"`
	UDPAddr           string `json:"udp_addr"`
	UDPPort           []int  `json:"udp_port"`
	UDPMTU            int    `json:"udp_mtu"`
	HeartbeatMs       int    `json:"heartbeat"`

	ToTCP                      string `json:"to_tcp"`
	BlockExpirationTimeoutMs   int    `json:"block_expiration_timeout"`
	SessionExpirationTimeoutMs int    `json:"session_expiration_timeout"`
	CoreAffinity               []int  `json:"core_affinity"`
	Metrics                    string `json:"metrics"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
