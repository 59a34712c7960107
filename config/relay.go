package config

import "fmt"

// maxBufferSize 单次转发缓冲区上限
const maxBufferSize = 1 << 20

// RelayConfig 转发引擎配置
type RelayConfig struct {
	// BufferSize 每个方向的读缓冲区大小，也是重放缓冲区容量
	BufferSize int `mapstructure:"buffer_size"`

	// Replay 上游重连后是否重放最近一次下游→上游数据块
	Replay bool `mapstructure:"replay"`

	// ReconnectOnUpstreamReset 上游连接被重置时重连而不是退出
	// 默认 false：上游 reset 视为致命错误，只有正常关闭才触发重连
	ReconnectOnUpstreamReset bool `mapstructure:"reconnect_on_upstream_reset"`

	// ReacceptOnDownstreamWriteError 写下游时发现对端已断开则重新 accept
	// 为 false 时任何下游写失败都是致命错误
	ReacceptOnDownstreamWriteError bool `mapstructure:"reaccept_on_downstream_write_error"`
}

// DefaultRelayConfig 返回默认转发配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BufferSize:                     1024,
		Replay:                         true,
		ReconnectOnUpstreamReset:       false,
		ReacceptOnDownstreamWriteError: true,
	}
}

// Validate 验证转发配置
func (c RelayConfig) Validate() error {
	if c.BufferSize <= 0 || c.BufferSize > maxBufferSize {
		return fmt.Errorf("%w: buffer_size must be in (0, %d]", ErrInvalidConfig, maxBufferSize)
	}
	return nil
}
