package downstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	tec "github.com/jbenet/go-temp-err-catcher"

	"github.com/dep2p/go-tunnel/config"
)

// aLongTimeAgo 用于立即唤醒阻塞中的 Accept
var aLongTimeAgo = time.Unix(1, 0)

// Config 接入器配置
type Config struct {
	// ListenAddr 监听地址
	ListenAddr string

	// Backlog 监听队列长度
	Backlog int

	// KeepAlive 下游连接 keepalive 周期，0 使用系统默认，负数禁用
	KeepAlive time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建接入器配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		ListenAddr: cfg.Downstream.ListenAddr,
		Backlog:    cfg.Downstream.Backlog,
		KeepAlive:  cfg.Downstream.KeepAlive,
	}
}

// Acceptor 下游接入器
//
// 监听器在 Listen 时创建一次，之后被每次 AcceptNext 复用。
// AcceptNext 不允许并发调用。
type Acceptor struct {
	cfg Config

	mu sync.Mutex
	ln *net.TCPListener

	catcher  tec.TempErrCatcher
	accepted atomic.Uint64
}

// NewAcceptor 创建下游接入器
func NewAcceptor(cfg Config) *Acceptor {
	if cfg.Backlog <= 0 {
		cfg.Backlog = config.DefaultDownstreamConfig().Backlog
	}
	return &Acceptor{cfg: cfg}
}

// Listen 绑定并开始监听
func (a *Acceptor) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ln != nil {
		return ErrAlreadyListening
	}

	ln, err := listenTCP(a.cfg.ListenAddr, a.cfg.Backlog)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrListenFailed, a.cfg.ListenAddr, err)
	}
	a.ln = ln

	logger.Info("下游监听已启动", "addr", ln.Addr().String(), "backlog", a.cfg.Backlog)
	return nil
}

// Addr 返回实际监听地址，未监听时返回 nil
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Accepted 返回累计接入的下游连接数
func (a *Acceptor) Accepted() uint64 {
	return a.accepted.Load()
}

func (a *Acceptor) listener() *net.TCPListener {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ln
}

// AcceptNext 阻塞等待下一个下游连接
//
// 临时性错误（如 EMFILE）在退避后重试；ctx 取消时返回 ctx.Err()。
func (a *Acceptor) AcceptNext(ctx context.Context) (net.Conn, error) {
	ln := a.listener()
	if ln == nil {
		return nil, ErrNotListening
	}

	// 清除上一次取消留下的截止时间
	_ = ln.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = ln.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	logger.Debug("等待下游接入", "addr", ln.Addr().String())

	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrNotListening
			}
			if a.catcher.IsTemporary(err) {
				logger.Warn("accept 临时错误，重试", "err", err)
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrAcceptFailed, err)
		}

		_ = conn.SetNoDelay(true)
		switch {
		case a.cfg.KeepAlive > 0:
			_ = conn.SetKeepAlive(true)
			_ = conn.SetKeepAlivePeriod(a.cfg.KeepAlive)
		case a.cfg.KeepAlive < 0:
			_ = conn.SetKeepAlive(false)
		}

		a.accepted.Add(1)
		logger.Info("下游已接入", "remote", conn.RemoteAddr().String())
		return conn, nil
	}
}

// Close 关闭监听器
func (a *Acceptor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ln == nil {
		return nil
	}
	err := a.ln.Close()
	a.ln = nil
	logger.Info("下游监听已关闭")
	return err
}
