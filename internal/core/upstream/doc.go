// Package upstream 实现上游（游戏引擎）连接器
//
// # 职责
//
//   - Dial: 单次带超时的连接尝试；超时或套接字错误视为失败，不留下半开连接
//   - Connect: 按重连策略反复 Dial，直到成功、ctx 取消或重试次数耗尽
//
// # 重连策略
//
// 重连间隔按指数退避计算（InitialDelay × Multiplier^(n-1)，上限 MaxDelay，
// 叠加 ±Jitter 抖动）。InitialDelay 为 0 时不等待，立即重试；
// MaxAttempts 为 0 时永不放弃。
//
// 等待使用可注入的 clock.Clock，测试中可用 clock.NewMock() 推进时间。
//
// # 架构层
//
// Core Layer
package upstream

import "github.com/dep2p/go-tunnel/pkg/lib/log"

var logger = log.Logger("core/upstream")
