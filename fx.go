package tunnel

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-tunnel/internal/core/downstream"
	"github.com/dep2p/go-tunnel/internal/core/metrics"
	"github.com/dep2p/go-tunnel/internal/core/relay"
	"github.com/dep2p/go-tunnel/internal/core/upstream"
	"github.com/dep2p/go-tunnel/internal/debug/introspect"
)

// buildFxApp 构建 Fx 应用
//
// 模块顺序决定 OnStart 顺序：downstream 先监听，relay 再开始运行，
// 保证下游在上游可达之前就能排队等待。
func buildFxApp(o *options, t *Tunnel) (*fx.App, error) {
	cfg := o.cfg

	fxOpts := []fx.Option{
		fx.Supply(cfg),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 指标：Collector 同时作为引擎与连接器的观察者
	// ════════════════════════════════════════════════════════════════════════
	fxOpts = append(fxOpts,
		metrics.Module,
		fx.Provide(
			func(c *metrics.Collector) relay.Observer { return c },
			func(c *metrics.Collector) upstream.AttemptObserver { return c },
		),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 核心组件
	// ════════════════════════════════════════════════════════════════════════
	fxOpts = append(fxOpts,
		upstream.Module(),
		downstream.Module(),
		relay.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 诊断（可选）
	// ════════════════════════════════════════════════════════════════════════
	if cfg.Diagnostics.EnableIntrospect {
		fxOpts = append(fxOpts, introspect.Module())
	}

	fxOpts = append(fxOpts, o.fxOpts...)

	// 回填 Tunnel 持有的组件引用
	fxOpts = append(fxOpts, fx.Invoke(t.bind))

	fxOpts = append(fxOpts, fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: fxEventLogger(cfg.Log.FxEvents)}
	}))

	app := fx.New(fxOpts...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// fxEventLogger 返回 fx 事件使用的 zap logger
//
// 默认静默，只在显式开启 log.fx_events 时输出。
func fxEventLogger(enabled bool) *zap.Logger {
	if !enabled {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// components Tunnel 需要持有的组件
type components struct {
	fx.In

	Engine     *relay.Engine
	Acceptor   *downstream.Acceptor
	Collector  *metrics.Collector
	Introspect *introspect.Server `optional:"true"`
}

// bind 在 Fx 构建阶段保存组件引用
func (t *Tunnel) bind(c components) {
	t.engine = c.Engine
	t.acceptor = c.Acceptor
	t.collector = c.Collector
	t.introspect = c.Introspect
}
