package logger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewTint 控制台彩色 handler。
func NewTint(w io.Writer, opt *slog.HandlerOptions) slog.Handler {
	topt := &tint.Options{TimeFormat: time.DateTime}
	if opt != nil {
		topt.AddSource = opt.AddSource
		topt.Level = opt.Level
		topt.ReplaceAttr = opt.ReplaceAttr
	}

	return tint.NewHandler(w, topt)
}

// NewRotate 带轮转的 JSON 文件 handler。
func NewRotate(filename string, maxsize, backups int, opt *slog.HandlerOptions) slog.Handler {
	if maxsize <= 0 {
		maxsize = 100
	}
	out := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxsize,
		MaxBackups: backups,
		Compress:   true,
	}

	return slog.NewJSONHandler(out, opt)
}

// Multi 将日志同时输出到多个 handler。
func Multi(handlers ...slog.Handler) slog.Handler {
	hs := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}

	return &multiHandler{handlers: hs}
}

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && errs == nil {
			errs = err
		}
	}
	return errs
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}

// ParseLevel 解析配置中的日志级别，无法识别时返回 info。
func ParseLevel(str string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(str)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
