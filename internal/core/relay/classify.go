package relay

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// errKind 读写错误分类
type errKind int

const (
	// kindClosed 对端有序关闭
	kindClosed errKind = iota
	// kindReset 对端重置
	kindReset
	// kindAborted 本端已丢弃该连接
	kindAborted
	// kindFatal 其他错误
	kindFatal
)

func (k errKind) String() string {
	switch k {
	case kindClosed:
		return "closed"
	case kindReset:
		return "reset"
	case kindAborted:
		return "aborted"
	default:
		return "fatal"
	}
}

// classify 对读错误分类
func classify(err error) errKind {
	switch {
	case errors.Is(err, io.EOF):
		return kindClosed
	case errors.Is(err, net.ErrClosed):
		return kindAborted
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNABORTED):
		return kindReset
	default:
		return kindFatal
	}
}

// peerGone 判断写错误是否意味着对端已离开
func peerGone(err error) bool {
	switch {
	case errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}
