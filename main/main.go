package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cnctrack/cnctrack/banner"
	"github.com/cnctrack/cnctrack/launch"
	"github.com/cnctrack/cnctrack/track/botmod"
)

func main() {
	var version bool
	var config string
	flag.BoolVar(&version, "v", false, "打印版本号")
	flag.StringVar(&config, "c", "cnctrack.jsonc", "配置文件")
	flag.Parse()

	if banner.ANSI(os.Stdout); version {
		return
	}

	logOpt := &slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug}
	log := slog.New(slog.NewJSONHandler(os.Stdout, logOpt))

	// 家族模块在此注册，各家族的协议实现以独立包接入。
	reg := botmod.NewRegistry()

	cares := []os.Signal{syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT}
	ctx, cancel := signal.NotifyContext(context.Background(), cares...)
	defer cancel()
	log.Info("按 Ctrl+C 结束运行")

	if err := launch.Run(ctx, config, reg); err != nil {
		log.Error("程序运行错误", slog.Any("error", err))
	}

	log.Info("程序运行结束")
}
