package logger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewGorm 将 gorm 的日志接到 slog 上。
func NewGorm(h slog.Handler, cfg gormlogger.Config) gormlogger.Interface {
	log := slog.New(h).WithGroup("gorm")
	return &gormLog{log: log, cfg: cfg}
}

type gormLog struct {
	log *slog.Logger
	cfg gormlogger.Config
}

func (gl *gormLog) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cfg := gl.cfg
	cfg.LogLevel = level
	return &gormLog{log: gl.log, cfg: cfg}
}

func (gl *gormLog) Info(ctx context.Context, format string, args ...any) {
	if gl.cfg.LogLevel >= gormlogger.Info {
		gl.log.InfoContext(ctx, format, slog.Any("args", args))
	}
}

func (gl *gormLog) Warn(ctx context.Context, format string, args ...any) {
	if gl.cfg.LogLevel >= gormlogger.Warn {
		gl.log.WarnContext(ctx, format, slog.Any("args", args))
	}
}

func (gl *gormLog) Error(ctx context.Context, format string, args ...any) {
	if gl.cfg.LogLevel >= gormlogger.Error {
		gl.log.ErrorContext(ctx, format, slog.Any("args", args))
	}
}

func (gl *gormLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if gl.cfg.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && gl.cfg.LogLevel >= gormlogger.Error &&
		(!errors.Is(err, gorm.ErrRecordNotFound) || !gl.cfg.IgnoreRecordNotFoundError):
		sql, rows := fc()
		gl.log.ErrorContext(ctx, "SQL 执行错误", slog.Any("error", err),
			slog.String("sql", sql), slog.Int64("rows", rows), slog.Duration("elapsed", elapsed))
	case gl.cfg.SlowThreshold > 0 && elapsed > gl.cfg.SlowThreshold && gl.cfg.LogLevel >= gormlogger.Warn:
		sql, rows := fc()
		gl.log.WarnContext(ctx, "慢 SQL", slog.String("sql", sql),
			slog.Int64("rows", rows), slog.Duration("elapsed", elapsed))
	case gl.cfg.LogLevel >= gormlogger.Info:
		sql, rows := fc()
		gl.log.DebugContext(ctx, "SQL 执行", slog.String("sql", sql),
			slog.Int64("rows", rows), slog.Duration("elapsed", elapsed))
	}
}
