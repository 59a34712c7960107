package metrics

import (
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-tunnel/config"
)

// ============================================================================
// Fx 模块测试
// ============================================================================

// TestModule_Load 测试模块加载
func TestModule_Load(t *testing.T) {
	var c *Collector

	app := fxtest.New(t,
		fx.NopLogger,
		Module,
		fx.Populate(&c),
	)
	defer app.RequireStart().RequireStop()

	if c == nil {
		t.Fatal("Collector not populated")
	}
	c.BytesForwarded("upstream_to_downstream", 100)
	if got := c.Snapshot().TotalUpstreamToDownstream; got != 100 {
		t.Errorf("TotalUpstreamToDownstream = %d, want 100", got)
	}
}

// TestModule_RuntimeCollectors 开启调试服务时导出运行时指标
func TestModule_RuntimeCollectors(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Diagnostics.EnableIntrospect = true

	var c *Collector
	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(cfg),
		Module,
		fx.Populate(&c),
	)
	defer app.RequireStart().RequireStop()

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "go_goroutines" {
			found = true
		}
	}
	if !found {
		t.Error("go_goroutines not exported")
	}
}
