package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/dep2p/go-tunnel/config"
	"github.com/dep2p/go-tunnel/internal/core/relay"
	"github.com/dep2p/go-tunnel/internal/core/upstream"
	"github.com/dep2p/go-tunnel/internal/debug/introspect"
)

// echoUpstream 启动一个回显上游，返回其地址
func echoUpstream(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(conn, conn)
			}()
		}
	}()
	return ln.Addr().String()
}

// closedAddr 返回一个当前无人监听的地址
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func testConfig(upstreamAddr string) *config.Config {
	cfg := config.NewConfig()
	cfg.Upstream.Addr = upstreamAddr
	cfg.Upstream.Retry.InitialDelay = 10 * time.Millisecond
	cfg.Upstream.Retry.MaxDelay = 50 * time.Millisecond
	cfg.Downstream.ListenAddr = "127.0.0.1:0"
	return cfg
}

func startTunnel(t *testing.T, opts ...Option) *Tunnel {
	t.Helper()
	tn, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, tn.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tn.Stop(ctx)
	})
	return tn
}

func roundTrip(t *testing.T, conn net.Conn, msg string) string {
	t.Helper()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err := conn.Write([]byte(msg))
	require.NoError(t, err)

	buf := make([]byte, len(msg))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	return string(buf)
}

// ════════════════════════════════════════════════════════════════════════════
//                              选项
// ════════════════════════════════════════════════════════════════════════════

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"nil config", WithConfig(nil)},
		{"upstream without port", WithUpstreamAddr("localhost")},
		{"listen without port", WithListenAddr("0.0.0.0")},
		{"zero buffer", WithBufferSize(0)},
		{"bad introspect", WithIntrospect("nope")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			assert.ErrorIs(t, err, ErrInvalidOption)
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Relay.BufferSize = -1

	_, err := New(WithConfig(cfg))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNew_OptionsApplied(t *testing.T) {
	tn, err := New(
		WithConfig(testConfig("127.0.0.1:1")),
		WithUpstreamAddr("127.0.0.1:2"),
		WithListenAddr("127.0.0.1:0"),
		WithBufferSize(512),
		WithIntrospect("127.0.0.1:0"),
	)
	require.NoError(t, err)

	cfg := tn.Config()
	assert.Equal(t, "127.0.0.1:2", cfg.Upstream.Addr)
	assert.Equal(t, 512, cfg.Relay.BufferSize)
	assert.True(t, cfg.Diagnostics.EnableIntrospect)
	assert.Equal(t, "127.0.0.1:0", cfg.Diagnostics.IntrospectAddr)
	assert.Equal(t, StateIdle, tn.State())
	assert.Nil(t, tn.ListenAddr(), "未启动时没有监听地址")
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

func TestTunnel_Lifecycle(t *testing.T) {
	tn, err := New(WithConfig(testConfig(echoUpstream(t))))
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, tn.Stop(ctx), ErrNotStarted)

	require.NoError(t, tn.Start(ctx))
	assert.Equal(t, StateRunning, tn.State())
	assert.ErrorIs(t, tn.Start(ctx), ErrAlreadyStarted)
	require.NotNil(t, tn.ListenAddr())

	require.NoError(t, tn.Stop(ctx))
	assert.Equal(t, StateStopped, tn.State())
	assert.NoError(t, tn.Stop(ctx), "重复停止无副作用")
	assert.ErrorIs(t, tn.Start(ctx), ErrClosed)
	assert.NoError(t, tn.Err())
}

func TestTunnel_Relay(t *testing.T) {
	tn := startTunnel(t, WithConfig(testConfig(echoUpstream(t))))

	conn, err := net.Dial("tcp", tn.ListenAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "PING", roundTrip(t, conn, "PING"))
	assert.Equal(t, "hello tunnel", roundTrip(t, conn, "hello tunnel"))

	require.Eventually(t, func() bool {
		st := tn.Stats()
		return st.TotalDownstreamToUpstream == 16 && st.TotalUpstreamToDownstream == 16
	}, 2*time.Second, 10*time.Millisecond)

	status := tn.Status()
	assert.True(t, status.Running)
	assert.True(t, status.Upstream.Connected)
	assert.True(t, status.Downstream.Connected)
}

func TestTunnel_PeerReplacement(t *testing.T) {
	tn := startTunnel(t, WithConfig(testConfig(echoUpstream(t))))
	addr := tn.ListenAddr().String()

	first, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	assert.Equal(t, "one", roundTrip(t, first, "one"))
	require.NoError(t, first.Close())

	second, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, "two", roundTrip(t, second, "two"))
}

// ════════════════════════════════════════════════════════════════════════════
//                              Run
// ════════════════════════════════════════════════════════════════════════════

func TestTunnel_RunCancel(t *testing.T) {
	tn, err := New(WithConfig(testConfig(echoUpstream(t))))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- tn.Run(ctx) }()

	require.Eventually(t, func() bool {
		return tn.State() == StateRunning
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run 未在取消后返回")
	}
	assert.Equal(t, StateStopped, tn.State())
}

func TestTunnel_RunFatal(t *testing.T) {
	cfg := testConfig(closedAddr(t))
	cfg.Upstream.Retry.MaxAttempts = 2

	tn, err := New(WithConfig(cfg))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- tn.Run(context.Background()) }()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, upstream.ErrRetryExhausted), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run 未在重试耗尽后返回")
	}
	assert.Error(t, tn.Err())
	assert.Equal(t, int64(2), tn.Stats().ConnectAttempts)
}

// ════════════════════════════════════════════════════════════════════════════
//                              诊断与扩展
// ════════════════════════════════════════════════════════════════════════════

func TestTunnel_Introspect(t *testing.T) {
	tn := startTunnel(t,
		WithConfig(testConfig(echoUpstream(t))),
		WithIntrospect("127.0.0.1:0"),
	)
	require.NotEmpty(t, tn.IntrospectAddr())

	conn, err := net.Dial("tcp", tn.ListenAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "x", roundTrip(t, conn, "x"))

	var health introspect.HealthResponse
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + tn.IntrospectAddr() + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if json.NewDecoder(resp.Body).Decode(&health) != nil {
			return false
		}
		return health.Status == "ok"
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + tn.IntrospectAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tunnel_bytes_forwarded_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTunnel_IntrospectDisabled(t *testing.T) {
	tn := startTunnel(t, WithConfig(testConfig(echoUpstream(t))))
	assert.Empty(t, tn.IntrospectAddr())
}

// countingObserver 包装 relay.Observer，通知下游接入事件
type countingObserver struct {
	relay.Observer
	accepted chan struct{}
}

func (o *countingObserver) DownstreamAccepted(conn net.Conn) {
	o.Observer.DownstreamAccepted(conn)
	select {
	case o.accepted <- struct{}{}:
	default:
	}
}

func TestTunnel_WithFxOptions(t *testing.T) {
	accepted := make(chan struct{}, 1)
	tn := startTunnel(t,
		WithConfig(testConfig(echoUpstream(t))),
		WithFxOptions(fx.Decorate(func(o relay.Observer) relay.Observer {
			return &countingObserver{Observer: o, accepted: accepted}
		})),
	)

	conn, err := net.Dial("tcp", tn.ListenAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("装饰后的观察者未收到接入事件")
	}

	// 指标仍由原观察者更新
	require.Eventually(t, func() bool {
		return tn.Status().DownstreamAccepts == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestVersionInfo(t *testing.T) {
	assert.Contains(t, VersionInfo(), Version)

	GitCommit = "0123456789abcdef"
	defer func() { GitCommit = "" }()
	assert.Contains(t, VersionInfo(), "(01234567)")
}
