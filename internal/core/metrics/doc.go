// Package metrics 提供隧道的监控指标收集
//
// Collector 同时实现 relay.Observer 和 upstream.AttemptObserver，
// 把引擎事件转换为 Prometheus 指标，注册在私有 Registry 上。
//
// # 指标
//
//	tunnel_bytes_forwarded_total{direction}         转发字节数
//	tunnel_upstream_connect_attempts_total{result}  上游连接尝试（success/failure）
//	tunnel_upstream_disconnects_total               上游断开次数
//	tunnel_downstream_accepts_total                 下游接入次数
//	tunnel_downstream_disconnects_total             下游断开次数
//	tunnel_replays_total                            重放次数
//	tunnel_replay_bytes_total                       重放字节数
//	tunnel_upstream_connected                       上游是否在线
//	tunnel_downstream_connected                     下游是否在线
//	tunnel_upstream_rtt_seconds                     上游 RTT（TCP_INFO，平台不支持时为 0）
//
// # 速率
//
// 每个方向另有一个 RateMeter，按秒分桶计算最近窗口内的平均速率，
// 供 introspect 输出。
//
// # 使用
//
//	c := metrics.NewCollector()
//	engine := relay.NewEngine(cfg, connector, acceptor, relay.WithObserver(c))
//	http.Handle("/metrics", c.Handler())
package metrics

import "github.com/dep2p/go-tunnel/pkg/lib/log"

var logger = log.Logger("core/metrics")
