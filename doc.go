// Package tunnel 提供游戏引擎与 offboard 控制端之间的双向 TCP 转发
//
// 隧道固定连接一个上游（游戏引擎），同时只服务一个下游（offboard 控制端）。
// 任一侧断开后隧道自行恢复：上游按退避策略重连，下游重新等待接入。
// 上游重连成功后，隧道会把最近一次从下游转发的数据块重放给上游，
// 使引擎恢复到断线前的订阅状态。
//
// # 快速开始
//
//	import "github.com/dep2p/go-tunnel"
//
//	t, err := tunnel.New(
//	    tunnel.WithUpstreamAddr("127.0.0.1:11297"),
//	    tunnel.WithListenAddr("0.0.0.0:11296"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// 阻塞直到 ctx 取消或引擎遇到致命错误
//	if err := t.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # 组件
//
//	┌──────────────────────────────────────────────────────────────┐
//	│  Tunnel（本包）          New / Start / Stop / Run             │
//	├──────────────────────────────────────────────────────────────┤
//	│  relay       转发引擎：两个方向的泵、恢复、重放               │
//	│  upstream    上游连接器：带退避的重连                         │
//	│  downstream  下游监听器：单连接接入                           │
//	│  replay      最近下游数据块                                   │
//	│  metrics     Prometheus 指标                                  │
//	│  introspect  本地自省 HTTP 服务（可选）                       │
//	└──────────────────────────────────────────────────────────────┘
//
// 所有组件通过 go.uber.org/fx 组装，见 fx.go。
package tunnel
