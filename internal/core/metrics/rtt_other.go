//go:build !((linux || darwin || freebsd || netbsd) && !riscv64 && !loong64)

package metrics

import (
	"errors"
	"net"
	"time"
)

var errRTTUnsupported = errors.New("metrics: tcp rtt not supported on this platform")

func connRTT(net.Conn) (time.Duration, error) {
	return 0, errRTTUnsupported
}
