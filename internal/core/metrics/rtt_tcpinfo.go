//go:build (linux || darwin || freebsd || netbsd) && !riscv64 && !loong64

package metrics

import (
	"fmt"
	"net"
	"time"

	"github.com/marten-seemann/tcp"
	"github.com/mikioh/tcpinfo"
)

// connRTT 通过 TCP_INFO 读取平滑 RTT
func connRTT(conn net.Conn) (time.Duration, error) {
	tc, err := tcp.NewConn(conn)
	if err != nil {
		return 0, err
	}

	var info tcpinfo.Info
	var b [256]byte
	opt, err := tc.Option(info.Level(), info.Name(), b[:])
	if err != nil {
		return 0, err
	}
	ti, ok := opt.(*tcpinfo.Info)
	if !ok {
		return 0, fmt.Errorf("unexpected tcp option type %T", opt)
	}
	return ti.RTT, nil
}
