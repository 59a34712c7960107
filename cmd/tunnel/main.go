// Package main 提供 tunnel 命令行入口
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dep2p/go-tunnel"
	"github.com/dep2p/go-tunnel/config"
	"github.com/dep2p/go-tunnel/pkg/lib/log"
)

var logger = log.Logger("tunnel/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 常用项通过命令行覆盖，其余通过配置文件或 TUNNEL_* 环境变量设置。
// 优先级：命令行 > 环境变量 > 配置文件 > 默认值
//
// ═══════════════════════════════════════════════════════════════════════════

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 返回进程退出码
//
//	0 - 收到退出信号后正常关闭
//	1 - 配置错误、启动失败或转发引擎致命错误
func run(args []string) int {
	fs := pflag.NewFlagSet("tunnel", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	showVersion := fs.BoolP("version", "v", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Println(tunnel.VersionInfo())
		return 0
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		return 1
	}

	if err := log.Setup(log.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "日志配置错误: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("启动隧道",
		"version", tunnel.Version,
		"commit", tunnel.GitCommit,
		"upstream", cfg.Upstream.Addr,
		"listen", cfg.Downstream.ListenAddr)

	t, err := tunnel.New(tunnel.WithConfig(cfg))
	if err != nil {
		logger.Error("创建隧道失败", "error", err)
		return 1
	}

	if err := t.Run(ctx); err != nil {
		logger.Error("隧道异常退出", "error", err)
		return 1
	}

	logger.Info("隧道已关闭")
	return 0
}
