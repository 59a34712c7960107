package relay

import "errors"

// Sentinel errors
var (
	// 运行错误
	ErrAlreadyRunning = errors.New("relay: already running")

	// 致命 I/O 错误
	ErrUpstreamRead    = errors.New("relay: upstream read failed")
	ErrUpstreamWrite   = errors.New("relay: upstream write failed")
	ErrDownstreamRead  = errors.New("relay: downstream read failed")
	ErrDownstreamWrite = errors.New("relay: downstream write failed")
	ErrReplayFailed    = errors.New("relay: replay failed")

	// errSlotClosed slot 已随引擎一起关闭
	errSlotClosed = errors.New("relay: slot closed")
)
