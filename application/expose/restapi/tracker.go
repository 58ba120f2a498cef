package restapi

import (
	"net/http"
	"strconv"

	"github.com/cnctrack/cnctrack/application/expose/service"
	"github.com/xgfone/ship/v5"
)

func NewTracker(svc *service.Tracker) *Tracker {
	return &Tracker{svc: svc}
}

type Tracker struct {
	svc *service.Tracker
}

func (rest *Tracker) BindRoute(rgb *ship.RouteGroupBuilder) error {
	rgb.Route("/trackers").GET(rest.page).POST(rest.submit)
	rgb.Route("/tracker/:id").GET(rest.detail)
	rgb.Route("/tracker/:id/archive").POST(rest.archive)
	rgb.Route("/modules").GET(rest.modules)
	return nil
}

type trackerPageReq struct {
	service.Pages
	Family string `query:"family"`
	Status string `query:"status"`
}

func (rest *Tracker) page(c *ship.Context) error {
	var req trackerPageReq
	if err := c.BindQuery(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ret, err := rest.svc.Page(ctx, req.Pages, req.Family, req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ret)
}

func (rest *Tracker) submit(c *ship.Context) error {
	var req service.TrackerSubmit
	if err := c.Bind(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ret, err := rest.svc.Submit(ctx, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, ret)
}

func (rest *Tracker) detail(c *ship.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return ship.ErrBadRequest.New(err)
	}

	ctx := c.Request().Context()
	ret, err := rest.svc.Detail(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ret)
}

type archiveReq struct {
	Reason string `json:"reason" validate:"lte=1024"`
}

func (rest *Tracker) archive(c *ship.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return ship.ErrBadRequest.New(err)
	}
	var req archiveReq
	if err = c.Bind(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err = rest.svc.Archive(ctx, id, req.Reason); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (rest *Tracker) modules(c *ship.Context) error {
	return c.JSON(http.StatusOK, rest.svc.Families())
}
