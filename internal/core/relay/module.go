package relay

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tunnel/config"
	"github.com/dep2p/go-tunnel/internal/core/downstream"
	"github.com/dep2p/go-tunnel/internal/core/upstream"
)

// Params Engine 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Connector  *upstream.Connector
	Acceptor   *downstream.Acceptor
	Observer   Observer `optional:"true"`
}

// NewFromParams 从参数创建 Engine
func NewFromParams(p Params) *Engine {
	return NewEngine(ConfigFromUnified(p.UnifiedCfg), p.Connector, p.Acceptor, WithObserver(p.Observer))
}

// Module 返回转发引擎 Fx 模块
//
// 必须排在 downstream.Module 之后，保证 Run 开始前监听已建立。
func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期依赖
type lifecycleInput struct {
	fx.In

	LC         fx.Lifecycle
	Engine     *Engine
	Shutdowner fx.Shutdowner
}

// registerLifecycle 在独立 goroutine 中运行引擎
//
// 致命错误触发应用关闭，退出码为 1。
func registerLifecycle(in lifecycleInput) {
	var cancel context.CancelFunc

	in.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			runCtx, c := context.WithCancel(context.Background())
			cancel = c

			go func() {
				if err := in.Engine.Run(runCtx); err != nil {
					logger.Error("转发引擎异常退出，关闭应用", "err", err)
					_ = in.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			select {
			case <-in.Engine.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
