package config

import (
	"fmt"
	"net"
	"strings"
)

// DiagnosticsConfig 诊断配置
type DiagnosticsConfig struct {
	// EnableIntrospect 启用本地自省 HTTP 服务（/metrics、/debug/introspect、pprof）
	EnableIntrospect bool `mapstructure:"enable_introspect"`

	// IntrospectAddr 自省服务监听地址
	IntrospectAddr string `mapstructure:"introspect_addr"`
}

// DefaultDiagnosticsConfig 返回默认诊断配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		EnableIntrospect: false,
		IntrospectAddr:   "127.0.0.1:6060",
	}
}

// Validate 验证诊断配置
func (c DiagnosticsConfig) Validate() error {
	if !c.EnableIntrospect {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.IntrospectAddr); err != nil {
		return fmt.Errorf("%w: introspect_addr %q: %v", ErrInvalidConfig, c.IntrospectAddr, err)
	}
	return nil
}

// LogConfig 日志配置
type LogConfig struct {
	// Level debug / info / warn / error
	Level string `mapstructure:"level"`

	// Format text / json
	Format string `mapstructure:"format"`

	// File 日志文件，为空时只写 stderr
	File string `mapstructure:"file"`

	// FxEvents 输出 fx 生命周期事件
	FxEvents bool `mapstructure:"fx_events"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Format)
	}
	return nil
}
