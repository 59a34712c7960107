package tunnel

import (
	"fmt"
	"net"

	"go.uber.org/fx"

	"github.com/dep2p/go-tunnel/config"
)

// Option 隧道配置选项
type Option func(*options) error

// options 选项应用后的内部状态
type options struct {
	cfg    *config.Config
	fxOpts []fx.Option
}

func newOptions() *options {
	return &options{cfg: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置
//
// 会整体替换此前选项写入的配置，通常放在第一个。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: config is nil", ErrInvalidOption)
		}
		o.cfg = cfg.Clone()
		return nil
	}
}

// WithUpstreamAddr 设置上游（游戏引擎）地址
func WithUpstreamAddr(addr string) Option {
	return func(o *options) error {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: upstream addr %q: %w", ErrInvalidOption, addr, err)
		}
		o.cfg.Upstream.Addr = addr
		return nil
	}
}

// WithListenAddr 设置下游监听地址
func WithListenAddr(addr string) Option {
	return func(o *options) error {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: listen addr %q: %w", ErrInvalidOption, addr, err)
		}
		o.cfg.Downstream.ListenAddr = addr
		return nil
	}
}

// WithBufferSize 设置单次读取的缓冲区大小
func WithBufferSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("%w: buffer size %d", ErrInvalidOption, n)
		}
		o.cfg.Relay.BufferSize = n
		return nil
	}
}

// WithIntrospect 启用本地自省服务
//
// addr 为空时使用默认地址 127.0.0.1:6060。
func WithIntrospect(addr string) Option {
	return func(o *options) error {
		if addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("%w: introspect addr %q: %w", ErrInvalidOption, addr, err)
			}
			o.cfg.Diagnostics.IntrospectAddr = addr
		}
		o.cfg.Diagnostics.EnableIntrospect = true
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
//
// 用于替换或装饰内部组件，例如 fx.Decorate 包装 relay.Observer。
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOpts = append(o.fxOpts, opts...)
		return nil
	}
}
