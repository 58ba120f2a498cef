package restapi

import (
	"net/http"

	"github.com/cnctrack/cnctrack/application/expose/service"
	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/xgfone/ship/v5"
)

func NewProxy(svc *service.Proxy) *Proxy {
	return &Proxy{svc: svc}
}

type Proxy struct {
	svc *service.Proxy
}

func (rest *Proxy) BindRoute(rgb *ship.RouteGroupBuilder) error {
	rgb.Route("/proxies").GET(rest.list)
	rgb.Route("/proxies/refresh").POST(rest.refresh)
	return nil
}

func (rest *Proxy) list(c *ship.Context) error {
	ctx := c.Request().Context()
	ret, err := rest.svc.List(ctx)
	if err != nil {
		return err
	}
	if ret == nil {
		ret = []model.Proxy{}
	}

	return c.JSON(http.StatusOK, ret)
}

// refresh 人工触发一次代理池刷新，不必等定时任务。
func (rest *Proxy) refresh(c *ship.Context) error {
	ctx := c.Request().Context()
	if err := rest.svc.Sync(ctx); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
