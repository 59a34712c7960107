package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 TUNNEL_UPSTREAM_ADDR
const EnvPrefix = "TUNNEL"

// 命令行参数名
const (
	FlagConfig      = "config"
	FlagUpstream    = "upstream"
	FlagListen      = "listen"
	FlagBufferSize  = "buffer-size"
	FlagLogLevel    = "log-level"
	FlagLogFormat   = "log-format"
	FlagLogFile     = "log-file"
	FlagIntrospect  = "introspect"
	FlagMaxAttempts = "max-attempts"
)

// flagKeys 命令行参数到配置键的映射
var flagKeys = map[string]string{
	FlagUpstream:    "upstream.addr",
	FlagListen:      "downstream.listen_addr",
	FlagBufferSize:  "relay.buffer_size",
	FlagLogLevel:    "log.level",
	FlagLogFormat:   "log.format",
	FlagLogFile:     "log.file",
	FlagIntrospect:  "diagnostics.introspect_addr",
	FlagMaxAttempts: "upstream.retry.max_attempts",
}

// RegisterFlags 在 FlagSet 上注册隧道的命令行参数
//
// 参数只覆盖最常用的配置项，其余通过配置文件或环境变量设置。
func RegisterFlags(fs *pflag.FlagSet) {
	d := NewConfig()
	fs.StringP(FlagConfig, "c", "", "配置文件路径（yaml/json/toml）")
	fs.String(FlagUpstream, d.Upstream.Addr, "上游（游戏引擎）地址")
	fs.String(FlagListen, d.Downstream.ListenAddr, "下游监听地址")
	fs.Int(FlagBufferSize, d.Relay.BufferSize, "转发缓冲区大小（字节）")
	fs.String(FlagLogLevel, d.Log.Level, "日志级别 (debug/info/warn/error)")
	fs.String(FlagLogFormat, d.Log.Format, "日志格式 (text/json)")
	fs.String(FlagLogFile, d.Log.File, "日志文件路径")
	fs.String(FlagIntrospect, "", "启用自省服务并监听该地址")
	fs.Int(FlagMaxAttempts, d.Upstream.Retry.MaxAttempts, "上游最大连接尝试次数（0 = 不限制）")
}

// Load 按 默认值 < 配置文件 < 环境变量 < 命令行 的优先级加载配置
//
// fs 可以为 nil，此时只使用默认值与环境变量。
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var path string
	if fs != nil {
		if f := fs.Lookup(FlagConfig); f != nil {
			path = f.Value.String()
		}
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
		// 显式给出 --introspect 即启用自省服务
		if f := fs.Lookup(FlagIntrospect); f != nil && f.Changed {
			v.Set("diagnostics.enable_introspect", true)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return ValidateAndFix(cfg)
}

// setDefaults 将默认配置写入 viper，使所有键都能被环境变量覆盖
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("upstream.addr", d.Upstream.Addr)
	v.SetDefault("upstream.connect_timeout", d.Upstream.ConnectTimeout)
	v.SetDefault("upstream.keepalive", d.Upstream.KeepAlive)
	v.SetDefault("upstream.retry.initial_delay", d.Upstream.Retry.InitialDelay)
	v.SetDefault("upstream.retry.max_delay", d.Upstream.Retry.MaxDelay)
	v.SetDefault("upstream.retry.multiplier", d.Upstream.Retry.Multiplier)
	v.SetDefault("upstream.retry.jitter", d.Upstream.Retry.Jitter)
	v.SetDefault("upstream.retry.max_attempts", d.Upstream.Retry.MaxAttempts)

	v.SetDefault("downstream.listen_addr", d.Downstream.ListenAddr)
	v.SetDefault("downstream.backlog", d.Downstream.Backlog)
	v.SetDefault("downstream.keepalive", d.Downstream.KeepAlive)

	v.SetDefault("relay.buffer_size", d.Relay.BufferSize)
	v.SetDefault("relay.replay", d.Relay.Replay)
	v.SetDefault("relay.reconnect_on_upstream_reset", d.Relay.ReconnectOnUpstreamReset)
	v.SetDefault("relay.reaccept_on_downstream_write_error", d.Relay.ReacceptOnDownstreamWriteError)

	v.SetDefault("diagnostics.enable_introspect", d.Diagnostics.EnableIntrospect)
	v.SetDefault("diagnostics.introspect_addr", d.Diagnostics.IntrospectAddr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.fx_events", d.Log.FxEvents)
}
