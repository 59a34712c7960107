package config

import (
	"fmt"
	"net"
	"time"
)

// DownstreamConfig 下游（offboard 控制端）监听配置
type DownstreamConfig struct {
	// ListenAddr 监听地址，默认所有网卡
	ListenAddr string `mapstructure:"listen_addr"`

	// Backlog 监听队列长度
	// 活跃下游之外的连接在此排队，直到当前下游断开
	Backlog int `mapstructure:"backlog"`

	// KeepAlive 下游连接 TCP keepalive 周期，0 使用系统默认，负数禁用
	KeepAlive time.Duration `mapstructure:"keepalive"`
}

// DefaultDownstreamConfig 返回默认下游配置
func DefaultDownstreamConfig() DownstreamConfig {
	return DownstreamConfig{
		ListenAddr: "0.0.0.0:11296",
		Backlog:    10,
		KeepAlive:  15 * time.Second,
	}
}

// Validate 验证下游配置
func (c DownstreamConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: listen_addr %q: %v", ErrInvalidConfig, c.ListenAddr, err)
	}
	if c.Backlog <= 0 {
		return fmt.Errorf("%w: backlog must be positive", ErrInvalidConfig)
	}
	return nil
}
