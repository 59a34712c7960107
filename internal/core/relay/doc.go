// Package relay 实现上下游之间的双向字节转发
//
// 一个 Engine 同时持有一条上游连接和一条下游连接，
// 并在任一侧断开后恢复转发。
//
// # 架构
//
//	┌──────────────┐    upPump     ┌──────────────┐
//	│   upstream   │ ────────────▶ │  downstream  │
//	│    slot      │               │     slot     │
//	│ (游戏引擎)    │ ◀──────────── │ (外部控制器)  │
//	└──────┬───────┘   downPump    └──────┬───────┘
//	       │                              │
//	  Connector.Connect              Acceptor.AcceptNext
//	  + replay.Buffer 重放
//
// 每个方向一个 goroutine，阻塞在源连接的 Read 上。
// 写入目标连接在目标 slot 的锁内进行；目标缺失时写方等待，
// 直到该侧的读方完成恢复。
//
// # 恢复规则
//
//   - 上游读到 EOF：关闭上游，重连，在新连接对外可见前重放缓冲区
//   - 上游读到 RST：默认致命，可通过 ReconnectOnUpstreamReset 改为重连
//   - 写上游失败且对端已离开：保留连接，等待上游读方完成重连后继续；
//     由这次写入引出的 RST 按 EOF 处理
//   - 下游读到 EOF 或 RST：关闭下游，等待下一个对端接入
//   - 写下游失败且对端已离开：丢弃下游，由下游读方重新接入
//   - 其他错误：致命，Run 返回带哨兵错误的包装
package relay

import "github.com/dep2p/go-tunnel/pkg/lib/log"

var logger = log.Logger("core/relay")
