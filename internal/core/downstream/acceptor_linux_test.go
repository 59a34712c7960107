//go:build linux

package downstream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// sockoptInt 读取已接入连接上的整型套接字选项
func sockoptInt(t *testing.T, c net.Conn, level, opt int) int {
	t.Helper()
	tc, ok := c.(*net.TCPConn)
	require.True(t, ok)
	raw, err := tc.SyscallConn()
	require.NoError(t, err)

	var v int
	var serr error
	require.NoError(t, raw.Control(func(fd uintptr) {
		v, serr = unix.GetsockoptInt(int(fd), level, opt)
	}))
	require.NoError(t, serr)
	return v
}

func acceptOne(t *testing.T, cfg Config) net.Conn {
	t.Helper()
	a := NewAcceptor(cfg)
	require.NoError(t, a.Listen())
	t.Cleanup(func() { _ = a.Close() })

	client, err := net.Dial("tcp", a.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := a.AcceptNext(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAcceptor_KeepAlivePeriod(t *testing.T) {
	conn := acceptOne(t, Config{ListenAddr: "127.0.0.1:0", Backlog: 10, KeepAlive: 7 * time.Second})

	assert.Equal(t, 1, sockoptInt(t, conn, unix.SOL_SOCKET, unix.SO_KEEPALIVE))
	assert.Equal(t, 7, sockoptInt(t, conn, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE))
}

func TestAcceptor_KeepAliveDisabled(t *testing.T) {
	conn := acceptOne(t, Config{ListenAddr: "127.0.0.1:0", Backlog: 10, KeepAlive: -1})

	assert.Equal(t, 0, sockoptInt(t, conn, unix.SOL_SOCKET, unix.SO_KEEPALIVE))
}
