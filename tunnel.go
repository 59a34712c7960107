package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-tunnel/config"
	"github.com/dep2p/go-tunnel/internal/core/downstream"
	"github.com/dep2p/go-tunnel/internal/core/metrics"
	"github.com/dep2p/go-tunnel/internal/core/relay"
	"github.com/dep2p/go-tunnel/internal/debug/introspect"
	"github.com/dep2p/go-tunnel/pkg/lib/log"
)

var logger = log.Logger("tunnel")

// ════════════════════════════════════════════════════════════════════════════
//                              隧道状态
// ════════════════════════════════════════════════════════════════════════════

// State 隧道状态
type State int

const (
	// StateIdle 已创建，未启动
	StateIdle State = iota

	// StateRunning 运行中
	StateRunning

	// StateStopped 已停止（不可再次启动）
	StateStopped
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// initializeTimeout Fx App 启动超时
	initializeTimeout = 30 * time.Second

	// stopTimeout Run 退出时的停止超时
	stopTimeout = 15 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Tunnel
// ════════════════════════════════════════════════════════════════════════════

// Tunnel 上游与下游之间的转发隧道
type Tunnel struct {
	cfg *config.Config
	app *fx.App

	// 由 Fx 回填
	engine     *relay.Engine
	acceptor   *downstream.Acceptor
	collector  *metrics.Collector
	introspect *introspect.Server

	mu    sync.Mutex
	state State
}

// New 创建隧道
//
// 只组装组件，不建立任何连接；需要调用 Start 或 Run。
func New(opts ...Option) (*Tunnel, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if err := config.ValidateAll(o.cfg); err != nil {
		return nil, err
	}

	t := &Tunnel{cfg: o.cfg}

	var err error
	t.app, err = buildFxApp(o, t)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return t, nil
}

// Start 启动隧道
//
// 返回时下游已在监听，转发引擎已在后台运行。
func (t *Tunnel) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrClosed
	}

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	if err := t.app.Start(initCtx); err != nil {
		logger.Error("隧道初始化失败", "error", err)
		return fmt.Errorf("initialize failed: %w", err)
	}

	t.state = StateRunning
	logger.Info("隧道已启动",
		"listen", addrString(t.ListenAddr()),
		"upstream", t.cfg.Upstream.Addr)
	return nil
}

// Stop 停止隧道
//
// 关闭监听和两侧连接，等待引擎退出。停止后不能再次启动。
func (t *Tunnel) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateIdle:
		return ErrNotStarted
	case StateStopped:
		return nil
	}

	t.state = StateStopped
	if err := t.app.Stop(ctx); err != nil {
		logger.Warn("隧道停止时出错", "error", err)
		return fmt.Errorf("stop failed: %w", err)
	}
	logger.Info("隧道已停止")
	return nil
}

// Run 启动隧道并阻塞
//
// 以下任一情况发生时停止隧道并返回：
//   - ctx 被取消，返回 nil
//   - 转发引擎遇到致命错误，返回该错误
//   - 应用收到 fx.Shutdowner 关闭信号
func (t *Tunnel) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-t.engine.Done():
	case sig := <-t.app.Wait():
		logger.Debug("收到关闭信号", "signal", sig.Signal, "exit_code", sig.ExitCode)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	stopErr := t.Stop(stopCtx)

	if err := t.Err(); err != nil {
		return err
	}
	return stopErr
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// ListenAddr 返回下游实际监听地址，未监听时返回 nil
func (t *Tunnel) ListenAddr() net.Addr {
	return t.acceptor.Addr()
}

// IntrospectAddr 返回自省服务地址，未启用时返回空字符串
func (t *Tunnel) IntrospectAddr() string {
	if t.introspect == nil {
		return ""
	}
	return t.introspect.Addr()
}

// Err 返回转发引擎的致命错误
//
// 引擎仍在运行或因取消正常退出时返回 nil。
func (t *Tunnel) Err() error {
	return t.engine.Err()
}

// Status 返回转发引擎状态
func (t *Tunnel) Status() relay.Status {
	return t.engine.Status()
}

// Stats 返回流量统计
func (t *Tunnel) Stats() metrics.Stats {
	return t.collector.Snapshot()
}

// State 返回隧道状态
func (t *Tunnel) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Config 返回隧道使用的配置副本
func (t *Tunnel) Config() *config.Config {
	return t.cfg.Clone()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
