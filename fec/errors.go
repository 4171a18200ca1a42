package fec

import "github.com/pkg/errors"

var errInvalidMTU = errors.New("udp mtu too small for header overhead")
