package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-tunnel/config"
	"github.com/dep2p/go-tunnel/internal/core/replay"
)

// 转发方向标签
const (
	DirectionUpstreamToDownstream = "upstream_to_downstream"
	DirectionDownstreamToUpstream = "downstream_to_upstream"
)

// ============================================================================
//                              配置
// ============================================================================

// Config 转发引擎配置
type Config struct {
	// BufferSize 单次读取的最大字节数，同时是重放缓冲区容量
	BufferSize int

	// Replay 上游重连后是否重放最后一块下游数据
	Replay bool

	// ReconnectOnUpstreamReset 上游 RST 时重连而不是退出
	ReconnectOnUpstreamReset bool

	// ReacceptOnDownstreamWriteError 写下游失败且对端已离开时重新接入
	ReacceptOnDownstreamWriteError bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建引擎配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return Config{
		BufferSize:                     cfg.Relay.BufferSize,
		Replay:                         cfg.Relay.Replay,
		ReconnectOnUpstreamReset:       cfg.Relay.ReconnectOnUpstreamReset,
		ReacceptOnDownstreamWriteError: cfg.Relay.ReacceptOnDownstreamWriteError,
	}
}

// ============================================================================
//                              依赖接口
// ============================================================================

// UpstreamConnector 建立上游连接（带重试）
type UpstreamConnector interface {
	Connect(ctx context.Context) (net.Conn, error)
}

// DownstreamAcceptor 接入下一个下游对端
type DownstreamAcceptor interface {
	AcceptNext(ctx context.Context) (net.Conn, error)
}

// Observer 接收引擎事件
//
// 回调在转发路径上同步调用，实现必须快速返回。
type Observer interface {
	BytesForwarded(direction string, n int)
	UpstreamConnected(conn net.Conn)
	UpstreamLost()
	DownstreamAccepted(conn net.Conn)
	DownstreamLost()
	Replayed(n int)
}

type nopObserver struct{}

func (nopObserver) BytesForwarded(string, int) {}
func (nopObserver) UpstreamConnected(net.Conn) {}
func (nopObserver) UpstreamLost() {}
func (nopObserver) DownstreamAccepted(net.Conn) {}
func (nopObserver) DownstreamLost() {}
func (nopObserver) Replayed(int) {}

// Option 引擎选项
type Option func(*Engine)

// WithObserver 设置事件观察者
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// ============================================================================
//                              Engine
// ============================================================================

// Status 引擎状态快照
type Status struct {
	Running    bool       `json:"running"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	Upstream   SideStatus `json:"upstream"`
	Downstream SideStatus `json:"downstream"`

	ReplayBytes int `json:"replay_bytes"`

	BytesUpstreamToDownstream uint64 `json:"bytes_upstream_to_downstream"`
	BytesDownstreamToUpstream uint64 `json:"bytes_downstream_to_upstream"`
	UpstreamReconnects        uint64 `json:"upstream_reconnects"`
	DownstreamAccepts         uint64 `json:"downstream_accepts"`
	Replays                   uint64 `json:"replays"`

	Error string `json:"error,omitempty"`
}

// Engine 双向转发引擎
type Engine struct {
	cfg       Config
	connector UpstreamConnector
	acceptor  DownstreamAcceptor
	observer  Observer
	replay    *replay.Buffer

	up   *slot
	down *slot

	started   atomic.Bool
	startedAt atomic.Int64
	done      chan struct{}

	errMu sync.Mutex
	err   error

	bytesToDown atomic.Uint64
	bytesToUp   atomic.Uint64
	reconnects  atomic.Uint64
	accepts     atomic.Uint64
	replays     atomic.Uint64
}

// NewEngine 创建转发引擎
func NewEngine(cfg Config, connector UpstreamConnector, acceptor DownstreamAcceptor, opts ...Option) *Engine {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = config.DefaultRelayConfig().BufferSize
	}

	e := &Engine{
		cfg:       cfg,
		connector: connector,
		acceptor:  acceptor,
		observer:  nopObserver{},
		replay:    replay.New(cfg.BufferSize),
		up:        newSlot("upstream"),
		down:      newSlot("downstream"),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Done 在 Run 返回后关闭
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err 返回导致 Run 退出的致命错误，正常停止时为 nil
func (e *Engine) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// Status 返回状态快照
func (e *Engine) Status() Status {
	st := Status{
		Upstream:                  e.up.status(),
		Downstream:                e.down.status(),
		ReplayBytes:               e.replay.Len(),
		BytesUpstreamToDownstream: e.bytesToDown.Load(),
		BytesDownstreamToUpstream: e.bytesToUp.Load(),
		UpstreamReconnects:        e.reconnects.Load(),
		DownstreamAccepts:         e.accepts.Load(),
		Replays:                   e.replays.Load(),
	}
	if ns := e.startedAt.Load(); ns != 0 {
		st.StartedAt = time.Unix(0, ns)
	}
	if e.started.Load() {
		select {
		case <-e.done:
		default:
			st.Running = true
		}
	}
	if err := e.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Run 建立两侧连接并转发，直到致命错误或 ctx 取消
//
// ctx 取消时返回 nil；致命错误时关闭两侧连接并返回包装后的错误。
// Run 只能调用一次。
func (e *Engine) Run(ctx context.Context) (err error) {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.startedAt.Store(time.Now().UnixNano())

	defer func() {
		e.errMu.Lock()
		e.err = err
		e.errMu.Unlock()
		close(e.done)
	}()

	logger.Info("转发引擎启动", "bufferSize", e.cfg.BufferSize, "replay", e.cfg.Replay)

	upConn, upGen, err := e.connectUpstream(ctx)
	if err != nil {
		return e.finish(ctx, err)
	}
	downConn, downGen, err := e.acceptDownstream(ctx)
	if err != nil {
		return e.finish(ctx, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		_ = e.shutdownSlots()
	})
	defer stop()

	g.Go(func() error {
		return e.upstreamPump(gctx, upConn, upGen)
	})
	g.Go(func() error {
		return e.downstreamPump(gctx, downConn, downGen)
	})

	return e.finish(ctx, g.Wait())
}

// finish 关闭两侧连接并决定 Run 的返回值
func (e *Engine) finish(ctx context.Context, err error) error {
	closeErr := e.shutdownSlots()

	if ctx.Err() != nil {
		if closeErr != nil {
			logger.Debug("关闭连接出错", "err", closeErr)
		}
		logger.Info("转发引擎已停止")
		return nil
	}

	err = multierr.Append(err, closeErr)
	logger.Error("转发引擎因致命错误终止", "err", err)
	return err
}

func (e *Engine) shutdownSlots() error {
	return multierr.Combine(e.up.shutdown(), e.down.shutdown())
}

// ============================================================================
//                              连接建立
// ============================================================================

// connectUpstream 建立上游连接，并在其对外可见前重放缓冲区
func (e *Engine) connectUpstream(ctx context.Context) (net.Conn, uint64, error) {
	conn, err := e.connector.Connect(ctx)
	if err != nil {
		return nil, 0, err
	}

	gen, err := e.up.installWith(conn, e.replayOn)
	if err != nil {
		return nil, 0, err
	}

	e.observer.UpstreamConnected(conn)
	logger.Info("上游已就绪",
		"remote", conn.RemoteAddr().String(),
		"session", e.up.status().Session,
		"generation", gen)
	return conn, gen, nil
}

// replayOn 在新上游连接上重放最后一块下游数据，调用方持有上游 slot 锁
func (e *Engine) replayOn(conn net.Conn) error {
	if !e.cfg.Replay {
		return nil
	}
	snap := e.replay.Snapshot()
	if len(snap) == 0 {
		return nil
	}

	if _, err := conn.Write(snap); err != nil {
		return fmt.Errorf("%w: %w", ErrReplayFailed, err)
	}

	e.replays.Add(1)
	e.observer.Replayed(len(snap))
	logger.Info("已向上游重放缓存数据", "bytes", len(snap))
	return nil
}

// acceptDownstream 等待并安装下一个下游对端
func (e *Engine) acceptDownstream(ctx context.Context) (net.Conn, uint64, error) {
	conn, err := e.acceptor.AcceptNext(ctx)
	if err != nil {
		return nil, 0, err
	}

	gen, err := e.down.installWith(conn, nil)
	if err != nil {
		return nil, 0, err
	}

	e.accepts.Add(1)
	e.observer.DownstreamAccepted(conn)
	logger.Info("下游已就绪",
		"remote", conn.RemoteAddr().String(),
		"session", e.down.status().Session,
		"generation", gen)
	return conn, gen, nil
}

// ============================================================================
//                              转发
// ============================================================================

// upstreamPump 读上游、写下游；负责上游的断线恢复
func (e *Engine) upstreamPump(ctx context.Context, conn net.Conn, gen uint64) error {
	buf := make([]byte, e.cfg.BufferSize)

	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			if err := e.forwardToDownstream(buf[:n]); err != nil {
				return e.pumpErr(ctx, err)
			}
		}
		if rerr == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind := classify(rerr)
		// 对端先发 FIN 后，本端写入会引出 RST；这种 RST 不是对端的重置
		if kind == kindReset && e.up.writeFailed(gen) {
			logger.Debug("上游 RST 由写入已关闭的连接引起，按关闭处理", "generation", gen)
			kind = kindClosed
		}
		recoverable := kind == kindClosed || kind == kindAborted ||
			(kind == kindReset && e.cfg.ReconnectOnUpstreamReset)
		if !recoverable {
			return fmt.Errorf("%w: %s: %w", ErrUpstreamRead, kind, rerr)
		}

		logger.Warn("上游连接断开，开始重连", "reason", kind.String(), "generation", gen)
		e.up.drop(gen)
		e.observer.UpstreamLost()

		var err error
		conn, gen, err = e.connectUpstream(ctx)
		if err != nil {
			return e.pumpErr(ctx, err)
		}
		e.reconnects.Add(1)
	}
}

// downstreamPump 读下游、写上游；负责下游的重新接入
func (e *Engine) downstreamPump(ctx context.Context, conn net.Conn, gen uint64) error {
	buf := make([]byte, e.cfg.BufferSize)

	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			if err := e.forwardToUpstream(buf[:n]); err != nil {
				return e.pumpErr(ctx, err)
			}
		}
		if rerr == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind := classify(rerr)
		if kind == kindFatal {
			return fmt.Errorf("%w: %w", ErrDownstreamRead, rerr)
		}

		logger.Info("下游连接断开，等待新对端", "reason", kind.String(), "generation", gen)
		e.down.drop(gen)
		e.observer.DownstreamLost()

		var err error
		conn, gen, err = e.acceptDownstream(ctx)
		if err != nil {
			return e.pumpErr(ctx, err)
		}
	}
}

// forwardToDownstream 将上游数据写入当前下游，下游缺失时等待
func (e *Engine) forwardToDownstream(p []byte) error {
	return e.down.withConn(func(conn net.Conn, gen uint64) error {
		_, err := conn.Write(p)
		if err == nil {
			e.bytesToDown.Add(uint64(len(p)))
			e.observer.BytesForwarded(DirectionUpstreamToDownstream, len(p))
			return nil
		}

		// 下游读方正在替换连接，这块数据属于已离开的对端
		if errors.Is(err, net.ErrClosed) {
			logger.Debug("下游连接已被替换，丢弃数据", "bytes", len(p))
			return nil
		}
		if e.cfg.ReacceptOnDownstreamWriteError && peerGone(err) {
			logger.Warn("写下游失败，对端已离开", "err", err, "generation", gen)
			e.down.dropLocked(gen)
			return nil
		}
		return fmt.Errorf("%w: %w", ErrDownstreamWrite, err)
	})
}

// forwardToUpstream 先存入重放缓冲区再写入当前上游，上游缺失时等待
//
// 写入失败且上游已离开时，等待上游读方完成重连后返回 nil；
// 这块数据已在重放缓冲区中，会在新连接上重放。
func (e *Engine) forwardToUpstream(p []byte) error {
	return e.up.withConn(func(conn net.Conn, gen uint64) error {
		if e.cfg.Replay {
			e.replay.Store(p)
		}

		_, err := conn.Write(p)
		if err == nil {
			e.bytesToUp.Add(uint64(len(p)))
			e.observer.BytesForwarded(DirectionDownstreamToUpstream, len(p))
			return nil
		}

		// 上游读方正在重连，这块数据会随重放送达
		if errors.Is(err, net.ErrClosed) {
			logger.Debug("上游连接已被替换，等待重放", "bytes", len(p))
			return nil
		}
		// 上游正在离开：恢复由上游读方判定，这里只等新连接装好。
		// 连接保持打开，读方才能读到对端的 FIN 而不是本地关闭。
		if peerGone(err) {
			logger.Debug("写上游失败，等待上游读方恢复", "err", err, "generation", gen)
			e.up.markWriteFailedLocked(gen)
			return e.up.awaitReplacementLocked(gen)
		}
		return fmt.Errorf("%w: %w", ErrUpstreamWrite, err)
	})
}

// pumpErr ctx 已取消时以取消原因覆盖 I/O 错误
func (e *Engine) pumpErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
