package restapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cnctrack/cnctrack/application/expose/service"
	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/xgfone/ship/v5"
)

func NewResult(svc *service.Result) *Result {
	return &Result{svc: svc}
}

type Result struct {
	svc *service.Result
}

func (rest *Result) BindRoute(rgb *ship.RouteGroupBuilder) error {
	rgb.Route("/results").GET(rest.page)
	rgb.Route("/task/:id/results").GET(rest.byTask)
	rgb.Route("/bot/:id/results").GET(rest.byBot)
	rgb.Route("/tracker/:id/results").GET(rest.byTracker)
	return nil
}

func (rest *Result) page(c *ship.Context) error {
	var req service.Pages
	if err := c.BindQuery(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ret, err := rest.svc.Page(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ret)
}

func (rest *Result) byTask(c *ship.Context) error {
	return rest.by(c, rest.svc.ByTask)
}

func (rest *Result) byBot(c *ship.Context) error {
	return rest.by(c, rest.svc.ByBot)
}

func (rest *Result) byTracker(c *ship.Context) error {
	return rest.by(c, rest.svc.ByTracker)
}

func (rest *Result) by(c *ship.Context, fn func(ctx context.Context, id int64) ([]model.Result, error)) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return ship.ErrBadRequest.New(err)
	}

	ctx := c.Request().Context()
	ret, err := fn(ctx, id)
	if err != nil {
		return err
	}
	if ret == nil {
		ret = []model.Result{}
	}

	return c.JSON(http.StatusOK, ret)
}
