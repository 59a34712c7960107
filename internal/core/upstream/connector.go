package upstream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-tunnel/config"
)

// AttemptObserver 观察每一次连接尝试
//
// err 为 nil 表示该次尝试成功。
type AttemptObserver interface {
	ConnectAttempt(err error)
}

// Config 连接器配置
type Config struct {
	// Addr 上游地址
	Addr string

	// ConnectTimeout 单次连接超时
	ConnectTimeout time.Duration

	// KeepAlive TCP keepalive 周期
	KeepAlive time.Duration

	// Retry 重连策略
	Retry config.RetryConfig
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建连接器配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		Addr:           cfg.Upstream.Addr,
		ConnectTimeout: cfg.Upstream.ConnectTimeout,
		KeepAlive:      cfg.Upstream.KeepAlive,
		Retry:          cfg.Upstream.Retry,
	}
}

// Option 连接器选项
type Option func(*Connector)

// WithClock 注入时钟（测试用 clock.NewMock()）
func WithClock(c clock.Clock) Option {
	return func(cn *Connector) {
		if c != nil {
			cn.clock = c
		}
	}
}

// WithObserver 设置连接尝试观察者
func WithObserver(o AttemptObserver) Option {
	return func(cn *Connector) {
		cn.SetObserver(o)
	}
}

// WithJitterSource 替换抖动随机源
func WithJitterSource(f func() float64) Option {
	return func(cn *Connector) {
		cn.backoff.rand = f
	}
}

// Connector 上游连接器
type Connector struct {
	cfg     Config
	clock   clock.Clock
	backoff *Backoff
	dialer  net.Dialer

	observerMu sync.RWMutex
	observer   AttemptObserver

	attempts atomic.Uint64
}

// NewConnector 创建上游连接器
func NewConnector(cfg Config, opts ...Option) *Connector {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = config.DefaultUpstreamConfig().ConnectTimeout
	}

	c := &Connector{
		cfg:     cfg,
		clock:   clock.New(),
		backoff: NewBackoff(cfg.Retry),
		dialer: net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: cfg.KeepAlive,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Addr 返回上游地址
func (c *Connector) Addr() string {
	return c.cfg.Addr
}

// Attempts 返回累计连接尝试次数
func (c *Connector) Attempts() uint64 {
	return c.attempts.Load()
}

// SetObserver 设置连接尝试观察者（线程安全）
func (c *Connector) SetObserver(o AttemptObserver) {
	c.observerMu.Lock()
	c.observer = o
	c.observerMu.Unlock()
}

func (c *Connector) notify(err error) {
	c.observerMu.RLock()
	o := c.observer
	c.observerMu.RUnlock()
	if o != nil {
		o.ConnectAttempt(err)
	}
}

// Dial 单次连接上游
//
// 连接在 ConnectTimeout 内未完成或完成后存在套接字错误都返回 ErrConnectFailed。
func (c *Connector) Dial(ctx context.Context) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, c.cfg.Addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// Connect 按重连策略连接上游，直到成功
//
// 只在 ctx 取消或 MaxAttempts 耗尽时返回错误；阻塞期间调用方不会转发任何数据。
func (c *Connector) Connect(ctx context.Context) (net.Conn, error) {
	start := c.clock.Now()

	for attempt := 1; ; attempt++ {
		conn, err := c.Dial(ctx)
		c.attempts.Add(1)
		c.notify(err)

		if err == nil {
			logger.Info("已连接上游",
				"addr", c.cfg.Addr,
				"local", conn.LocalAddr().String(),
				"attempts", attempt,
				"elapsed", c.clock.Now().Sub(start))
			return conn, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if attempt == 1 {
			logger.Warn("连接上游失败，开始重试", "addr", c.cfg.Addr, "err", err)
		} else {
			logger.Debug("连接上游失败", "addr", c.cfg.Addr, "attempt", attempt, "err", err)
		}

		if limit := c.cfg.Retry.MaxAttempts; limit > 0 && attempt >= limit {
			logger.Error("上游重试次数耗尽", "addr", c.cfg.Addr, "attempts", attempt)
			return nil, fmt.Errorf("%w: %d attempts to %s: %w", ErrRetryExhausted, attempt, c.cfg.Addr, err)
		}

		delay := c.backoff.Delay(attempt)
		if delay <= 0 {
			continue
		}

		timer := c.clock.Timer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
