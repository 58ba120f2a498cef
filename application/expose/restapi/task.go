package restapi

import (
	"net/http"
	"strconv"

	"github.com/cnctrack/cnctrack/application/expose/service"
	"github.com/xgfone/ship/v5"
)

func NewTask(svc *service.Task) *Task {
	return &Task{svc: svc}
}

type Task struct {
	svc *service.Task
}

func (rest *Task) BindRoute(rgb *ship.RouteGroupBuilder) error {
	rgb.Route("/tasks").GET(rest.page)
	rgb.Route("/task/:id").GET(rest.get)
	rgb.Route("/task/:id/logs").GET(rest.logs)
	return nil
}

type taskPageReq struct {
	service.Pages
	BotID  int64  `query:"bot_id"`
	Status string `query:"status"`
}

func (rest *Task) page(c *ship.Context) error {
	var req taskPageReq
	if err := c.BindQuery(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ret, err := rest.svc.Page(ctx, req.Pages, req.BotID, req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ret)
}

func (rest *Task) get(c *ship.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return ship.ErrBadRequest.New(err)
	}

	ctx := c.Request().Context()
	ret, err := rest.svc.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ret)
}

type taskLogReq struct {
	Lines int `query:"lines"` // 0 或负数代表全部
}

func (rest *Task) logs(c *ship.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return ship.ErrBadRequest.New(err)
	}
	var req taskLogReq
	if err = c.BindQuery(&req); err != nil {
		return err
	}
	if req.Lines <= 0 {
		req.Lines = -1
	}

	ctx := c.Request().Context()
	c.SetRespHeader(ship.HeaderContentType, ship.MIMETextPlainCharsetUTF8)
	c.WriteHeader(http.StatusOK)

	return rest.svc.Logs(ctx, c.Response(), id, req.Lines)
}
