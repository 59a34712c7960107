// Package downstream 实现下游（offboard 控制端）接入
//
// # 职责
//
//   - Listen: 启动时在固定端口监听一次，失败即致命，没有备用端口
//   - AcceptNext: 阻塞等待下一个下游连接；同一时刻只服务一个下游，
//     其余连接在监听队列（backlog）中排队，直到当前下游断开后才被 accept
//
// # 监听队列
//
// Linux 上通过原始套接字精确设置 backlog；其它平台使用系统默认值。
//
// # 取消
//
// AcceptNext 在 ctx 取消时通过设置监听截止时间唤醒，监听器本身保持可用。
//
// # 架构层
//
// Core Layer
package downstream

import "github.com/dep2p/go-tunnel/pkg/lib/log"

var logger = log.Logger("core/downstream")
