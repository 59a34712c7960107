package upstream

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tunnel/config"
)

// ============================================================================
//                              辅助
// ============================================================================

// recordingObserver 记录每次连接尝试
type recordingObserver struct {
	mu       sync.Mutex
	failures int
	success  int
}

func (o *recordingObserver) ConnectAttempt(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failures++
	} else {
		o.success++
	}
}

func (o *recordingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failures, o.success
}

// closedAddr 返回一个当前无人监听的本地地址
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func testConfig(addr string) Config {
	return Config{
		Addr:           addr,
		ConnectTimeout: time.Second,
		Retry:          config.RetryConfig{},
	}
}

// ============================================================================
//                              Dial
// ============================================================================

func TestConnector_DialSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	c := NewConnector(testConfig(ln.Addr().String()))
	conn, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	peer := <-accepted
	defer peer.Close()

	_, err = conn.Write([]byte("hi"))
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = io.ReadFull(peer, buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf))
}

func TestConnector_DialRefused(t *testing.T) {
	c := NewConnector(testConfig(closedAddr(t)))
	_, err := c.Dial(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectFailed)
}

func TestNewConnector_DefaultTimeout(t *testing.T) {
	c := NewConnector(Config{Addr: "127.0.0.1:1"})
	assert.Equal(t, time.Second, c.cfg.ConnectTimeout)
	assert.Equal(t, "127.0.0.1:1", c.Addr())
}

// ============================================================================
//                              Connect（重试）
// ============================================================================

func TestConnector_ConnectRetriesUntilListenerAppears(t *testing.T) {
	addr := closedAddr(t)
	obs := &recordingObserver{}
	cfg := testConfig(addr)
	cfg.Retry.InitialDelay = 5 * time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Retry.Multiplier = 1
	c := NewConnector(cfg, WithObserver(obs))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := c.Connect(ctx)
		done <- result{conn, err}
	}()

	// 等待至少几次失败后再开始监听
	require.Eventually(t, func() bool {
		f, _ := obs.counts()
		return f >= 3
	}, 5*time.Second, 5*time.Millisecond)

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			defer c.Close()
			_, _ = io.Copy(io.Discard, c)
		}
	}()

	res := <-done
	require.NoError(t, res.err)
	defer res.conn.Close()

	failures, success := obs.counts()
	assert.GreaterOrEqual(t, failures, 3)
	assert.Equal(t, 1, success)
	assert.Equal(t, uint64(failures+success), c.Attempts())
}

func TestConnector_ConnectMaxAttempts(t *testing.T) {
	cfg := testConfig(closedAddr(t))
	cfg.Retry.MaxAttempts = 4
	c := NewConnector(cfg)

	_, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.Equal(t, uint64(4), c.Attempts())
}

func TestConnector_ConnectWaitsOnClock(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig(closedAddr(t))
	cfg.Retry = config.RetryConfig{
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   1,
		MaxAttempts:  3,
	}
	c := NewConnector(cfg, WithClock(mock))

	done := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background())
		done <- err
	}()

	// 时钟不前进时停在第一次失败之后
	require.Eventually(t, func() bool { return c.Attempts() == 1 }, 2*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), c.Attempts())

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrRetryExhausted)
			assert.Equal(t, uint64(3), c.Attempts())
			return
		case <-deadline:
			t.Fatal("connect did not finish")
		default:
			mock.Add(time.Second)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestConnector_ConnectCanceled(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig(closedAddr(t))
	cfg.Retry.InitialDelay = time.Hour
	c := NewConnector(cfg, WithClock(mock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Connect(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return c.Attempts() >= 1 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("connect ignored cancellation")
	}
}

// ============================================================================
//                              Backoff
// ============================================================================

func TestBackoff_Delay(t *testing.T) {
	b := NewBackoff(config.RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	})

	assert.Equal(t, time.Duration(0), b.Delay(0))
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, 800*time.Millisecond, b.Delay(4))
	assert.Equal(t, time.Second, b.Delay(5))
	assert.Equal(t, time.Second, b.Delay(50))
}

func TestBackoff_UncappedSaturates(t *testing.T) {
	b := NewBackoff(config.RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2,
		Jitter:       0.1,
	})

	// 向下抖动后仍为正数
	b.rand = func() float64 { return 0 }
	assert.Greater(t, b.Delay(200), time.Duration(0))
	assert.Greater(t, b.Delay(5000), time.Duration(0))

	for _, r := range []float64{0.5, 0.999} {
		b.rand = func() float64 { return r }
		assert.Equal(t, time.Duration(math.MaxInt64), b.Delay(200), "rand=%v", r)
		assert.Equal(t, time.Duration(math.MaxInt64), b.Delay(5000), "rand=%v", r)
	}

	prev := b.Delay(1)
	for i := 2; i < 80; i++ {
		d := b.Delay(i)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", i)
		prev = d
	}
}

func TestBackoff_ZeroInitialIsImmediate(t *testing.T) {
	b := NewBackoff(config.RetryConfig{MaxDelay: time.Second, Multiplier: 2})
	for i := 1; i < 5; i++ {
		assert.Equal(t, time.Duration(0), b.Delay(i))
	}
}

func TestBackoff_Jitter(t *testing.T) {
	b := NewBackoff(config.RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   1,
		Jitter:       0.5,
	})

	b.rand = func() float64 { return 0 }
	assert.Equal(t, 50*time.Millisecond, b.Delay(1))

	b.rand = func() float64 { return 0.5 }
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))

	b.rand = func() float64 { return 0.999 }
	d := b.Delay(1)
	assert.Greater(t, d, 140*time.Millisecond)
	assert.LessOrEqual(t, d, 150*time.Millisecond)
}

func TestModule_NewFromParams(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Upstream.Addr = "127.0.0.1:4242"
	obs := &recordingObserver{}

	c := NewFromParams(Params{UnifiedCfg: cfg, Observer: obs})
	assert.Equal(t, "127.0.0.1:4242", c.Addr())

	c.notify(nil)
	_, success := obs.counts()
	assert.Equal(t, 1, success)
}
