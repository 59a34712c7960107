package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("config: invalid")

// ValidateAll 验证整个配置的有效性
//
// 这是 Config.Validate() 的别名，允许传入 nil。
func ValidateAll(c *Config) error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并修复可以安全修复的问题
//
// 可修复的问题：
//   - MaxDelay 小于 InitialDelay -> 提升到 InitialDelay（0 表示不设上限，保持不变）
//   - Multiplier 为 0 -> 使用默认值
//   - Backlog 为 0 -> 使用默认值
//   - BufferSize 为 0 -> 使用默认值
//
// 负值不做修复，交由 Validate 报错。
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	retry := &c.Upstream.Retry
	if retry.MaxDelay > 0 && retry.MaxDelay < retry.InitialDelay {
		retry.MaxDelay = retry.InitialDelay
	}
	if retry.Multiplier == 0 {
		retry.Multiplier = DefaultRetryConfig().Multiplier
	}
	if c.Downstream.Backlog == 0 {
		c.Downstream.Backlog = DefaultDownstreamConfig().Backlog
	}
	if c.Relay.BufferSize == 0 {
		c.Relay.BufferSize = DefaultRelayConfig().BufferSize
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}
