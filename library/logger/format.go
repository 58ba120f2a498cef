package logger

import (
	"fmt"
	"log/slog"
)

// NewFormat 适配 printf 风格的日志接口（例如 pyroscope.Logger）。
func NewFormat(h slog.Handler, skip int) *Format {
	_ = skip // 保留参数占位，slog 统一不回溯调用栈
	return &Format{log: slog.New(h)}
}

type Format struct {
	log *slog.Logger
}

func (f *Format) Debugf(format string, args ...any) { f.log.Debug(fmt.Sprintf(format, args...)) }
func (f *Format) Infof(format string, args ...any)  { f.log.Info(fmt.Sprintf(format, args...)) }
func (f *Format) Errorf(format string, args ...any) { f.log.Error(fmt.Sprintf(format, args...)) }
