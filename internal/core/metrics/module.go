package metrics

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-tunnel/config"
)

// Config 指标配置
type Config struct {
	// RuntimeCollectors 是否导出 Go 运行时和进程指标
	RuntimeCollectors bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		RuntimeCollectors: false,
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		RuntimeCollectors: cfg.Diagnostics.EnableIntrospect, // 只有开启调试服务时才有人抓取
	}
}

// Params Collector 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 是 metrics 的 Fx 模块
var Module = fx.Module("metrics",
	fx.Provide(NewCollectorFromParams),
)

// NewCollectorFromParams 从参数创建 Collector
func NewCollectorFromParams(p Params) *Collector {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	var opts []Option
	if cfg.RuntimeCollectors {
		opts = append(opts, WithRuntimeCollectors())
	}
	return NewCollector(opts...)
}
