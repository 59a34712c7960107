package tunnel

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 隧道未启动
	ErrNotStarted = errors.New("tunnel not started")

	// ErrAlreadyStarted 隧道已启动
	ErrAlreadyStarted = errors.New("tunnel already started")

	// ErrClosed 隧道已停止，不能再次启动
	ErrClosed = errors.New("tunnel closed")

	// ────────────────────────────────────────────────────────────────────────
	// 配置错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrInvalidOption 选项参数无效
	ErrInvalidOption = errors.New("invalid option")
)
