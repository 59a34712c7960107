package downstream

import "errors"

// Sentinel errors
var (
	// ErrListenFailed 绑定或监听失败（致命）
	ErrListenFailed = errors.New("downstream: listen failed")

	// ErrAcceptFailed 非临时性 accept 错误（致命）
	ErrAcceptFailed = errors.New("downstream: accept failed")

	// ErrNotListening 尚未调用 Listen 或已关闭
	ErrNotListening = errors.New("downstream: not listening")

	// ErrAlreadyListening 重复调用 Listen
	ErrAlreadyListening = errors.New("downstream: already listening")
)
