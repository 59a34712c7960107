// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 通过 Load 按 默认值 < 配置文件 < 环境变量 < 命令行 的顺序合并
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Upstream.Addr = "10.0.0.5:11297"
//
//	// 从命令行、环境变量与配置文件加载
//	fs := pflag.NewFlagSet("tunnel", pflag.ContinueOnError)
//	config.RegisterFlags(fs)
//	_ = fs.Parse(os.Args[1:])
//	cfg, err := config.Load(fs)
package config

import "fmt"

// Config 是隧道的完整配置结构
//
// 配置按照功能模块组织：
//   - Upstream: 上游（游戏引擎）连接与重连策略
//   - Downstream: 下游（offboard 控制端）监听
//   - Relay: 转发引擎行为
//   - Diagnostics: 指标与自省服务
//   - Log: 日志输出
type Config struct {
	// Upstream 上游连接配置
	Upstream UpstreamConfig `mapstructure:"upstream"`

	// Downstream 下游监听配置
	Downstream DownstreamConfig `mapstructure:"downstream"`

	// Relay 转发引擎配置
	Relay RelayConfig `mapstructure:"relay"`

	// Diagnostics 诊断配置
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`

	// Log 日志配置
	Log LogConfig `mapstructure:"log"`
}

// NewConfig 返回默认配置
func NewConfig() *Config {
	return &Config{
		Upstream:    DefaultUpstreamConfig(),
		Downstream:  DefaultDownstreamConfig(),
		Relay:       DefaultRelayConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
		Log:         DefaultLogConfig(),
	}
}

// Validate 验证整个配置
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if err := c.Downstream.Validate(); err != nil {
		return fmt.Errorf("downstream: %w", err)
	}
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := c.Diagnostics.Validate(); err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Clone 返回配置的深拷贝
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
