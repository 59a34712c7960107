package upstream

import "errors"

// Sentinel errors
var (
	// ErrConnectFailed 单次连接尝试失败（可重试）
	ErrConnectFailed = errors.New("upstream: connect failed")

	// ErrRetryExhausted 重试次数耗尽（致命）
	ErrRetryExhausted = errors.New("upstream: retry attempts exhausted")
)
