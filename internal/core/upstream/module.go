package upstream

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-tunnel/config"
)

// Params Connector 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config  `optional:"true"`
	Observer   AttemptObserver `optional:"true"`
}

// NewFromParams 从参数创建 Connector
func NewFromParams(p Params) *Connector {
	var opts []Option
	if p.Observer != nil {
		opts = append(opts, WithObserver(p.Observer))
	}
	return NewConnector(ConfigFromUnified(p.UnifiedCfg), opts...)
}

// Module 返回上游连接器 Fx 模块
func Module() fx.Option {
	return fx.Module("upstream",
		fx.Provide(NewFromParams),
	)
}
