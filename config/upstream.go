package config

import (
	"fmt"
	"net"
	"time"
)

// UpstreamConfig 上游（游戏引擎）连接配置
type UpstreamConfig struct {
	// Addr 上游地址 host:port
	Addr string `mapstructure:"addr"`

	// ConnectTimeout 单次连接超时
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// KeepAlive TCP keepalive 周期，0 使用系统默认，负数禁用
	KeepAlive time.Duration `mapstructure:"keepalive"`

	// Retry 重连策略
	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig 上游重连策略
//
// InitialDelay 为 0 时退化为无间隔、无限次的立即重试。
type RetryConfig struct {
	// InitialDelay 第一次失败后的等待时间
	InitialDelay time.Duration `mapstructure:"initial_delay"`

	// MaxDelay 退避上限
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// Multiplier 退避乘数
	Multiplier float64 `mapstructure:"multiplier"`

	// Jitter 抖动比例 [0, 1)
	Jitter float64 `mapstructure:"jitter"`

	// MaxAttempts 最大尝试次数，0 表示不限制
	MaxAttempts int `mapstructure:"max_attempts"`
}

// DefaultUpstreamConfig 返回默认上游配置
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		Addr:           "127.0.0.1:11297",
		ConnectTimeout: 1 * time.Second,
		KeepAlive:      15 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// DefaultRetryConfig 返回默认重连策略
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 100 * time.Millisecond, // 首次失败后 100ms
		MaxDelay:     2 * time.Second,        // 最多 2s 一次
		Multiplier:   2.0,
		Jitter:       0.1,
		MaxAttempts:  0, // 永不放弃
	}
}

// Validate 验证上游配置
func (c UpstreamConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("%w: addr %q: %v", ErrInvalidConfig, c.Addr, err)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout must be positive", ErrInvalidConfig)
	}
	return c.Retry.Validate()
}

// Validate 验证重连策略
func (c RetryConfig) Validate() error {
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("%w: retry delays must not be negative", ErrInvalidConfig)
	}
	if c.InitialDelay > 0 && c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("%w: retry max_delay < initial_delay", ErrInvalidConfig)
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return fmt.Errorf("%w: retry multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("%w: retry jitter must be in [0, 1)", ErrInvalidConfig)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: retry max_attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}
