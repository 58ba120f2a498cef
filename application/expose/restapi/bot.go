package restapi

import (
	"net/http"
	"strconv"

	"github.com/cnctrack/cnctrack/application/expose/service"
	"github.com/xgfone/ship/v5"
)

func NewBot(svc *service.Bot) *Bot {
	return &Bot{svc: svc}
}

type Bot struct {
	svc *service.Bot
}

func (rest *Bot) BindRoute(rgb *ship.RouteGroupBuilder) error {
	rgb.Route("/bots").GET(rest.page)
	rgb.Route("/bot/:id").GET(rest.get)
	rgb.Route("/bot/:id/archive").POST(rest.archive)
	rgb.Route("/bot/:id/revive").POST(rest.revive)
	return nil
}

type botPageReq struct {
	service.Pages
	TrackerID int64  `query:"tracker_id"`
	Status    string `query:"status"`
}

func (rest *Bot) page(c *ship.Context) error {
	var req botPageReq
	if err := c.BindQuery(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	ret, err := rest.svc.Page(ctx, req.Pages, req.TrackerID, req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ret)
}

func (rest *Bot) get(c *ship.Context) error {
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

func (rest *Bot) archive(c *ship.Context) error {
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

func (rest *Bot) revive(c *ship.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return ship.ErrBadRequest.New(err)
	}

	ctx := c.Request().Context()
	if err = rest.svc.Revive(ctx, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
