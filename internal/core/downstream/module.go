package downstream

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-tunnel/config"
)

// Params Acceptor 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// NewFromParams 从参数创建 Acceptor
func NewFromParams(p Params) *Acceptor {
	return NewAcceptor(ConfigFromUnified(p.UnifiedCfg))
}

// Module 返回下游接入器 Fx 模块
//
// 监听在 OnStart 中建立，因此端口被占用时应用启动失败。
func Module() fx.Option {
	return fx.Module("downstream",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, a *Acceptor) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return a.Listen()
		},
		OnStop: func(_ context.Context) error {
			return a.Close()
		},
	})
}
