//go:build !linux

package downstream

import (
	"context"
	"fmt"
	"net"
)

// listenTCP 创建监听器
//
// 非 Linux 平台无法通过标准库设置 backlog，使用系统默认值。
func listenTCP(addr string, _ int) (*net.TCPListener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("unexpected listener type %T", ln)
	}
	return tl, nil
}
