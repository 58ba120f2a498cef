package shipx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xgfone/ship/v5"
)

// RouteBinder 模块化注册路由。
type RouteBinder interface {
	BindRoute(rgb *ship.RouteGroupBuilder) error
}

func BindRoutes(rgb *ship.RouteGroupBuilder, binders []RouteBinder) error {
	for _, b := range binders {
		if err := b.BindRoute(rgb); err != nil {
			return err
		}
	}
	return nil
}

// Problem 统一的错误响应报文。
type Problem struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func NotFound(c *ship.Context) error {
	pd := &Problem{Status: http.StatusNotFound, Detail: "资源不存在"}
	return c.JSON(http.StatusNotFound, pd)
}

func HandleError(c *ship.Context, err error) {
	code := http.StatusBadRequest
	var he ship.HTTPServerError
	if errors.As(err, &he) {
		code = he.Code
	}
	if code >= http.StatusInternalServerError {
		c.Errorf("请求处理出错: %s", err)
	}

	pd := &Problem{Status: code, Detail: err.Error()}
	_ = c.JSON(code, pd)
}

// NewLog 将 ship 框架日志接到 slog。
func NewLog(h slog.Handler) ship.Logger {
	return &shipLog{log: slog.New(h).WithGroup("ship")}
}

type shipLog struct {
	log *slog.Logger
}

func (sl *shipLog) Tracef(format string, args ...any) { sl.logf(slog.LevelDebug, format, args) }
func (sl *shipLog) Debugf(format string, args ...any) { sl.logf(slog.LevelDebug, format, args) }
func (sl *shipLog) Infof(format string, args ...any)  { sl.logf(slog.LevelInfo, format, args) }
func (sl *shipLog) Warnf(format string, args ...any)  { sl.logf(slog.LevelWarn, format, args) }
func (sl *shipLog) Errorf(format string, args ...any) { sl.logf(slog.LevelError, format, args) }

func (sl *shipLog) logf(level slog.Level, format string, args []any) {
	ctx := context.Background()
	if len(args) == 0 {
		sl.log.Log(ctx, level, format)
		return
	}
	sl.log.Log(ctx, level, fmt.Sprintf(format, args...))
}
