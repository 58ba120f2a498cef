package shipx

import (
	"net/http/pprof"

	"github.com/xgfone/ship/v5"
)

// NewPprof 暴露 go pprof 调试接口。
func NewPprof() RouteBinder {
	return &pprofAPI{}
}

type pprofAPI struct{}

func (p *pprofAPI) BindRoute(rgb *ship.RouteGroupBuilder) error {
	rgb.Route("/debug/pprof").GET(p.index)
	rgb.Route("/debug/cmdline").GET(p.cmdline)
	rgb.Route("/debug/profile").GET(p.profile)
	rgb.Route("/debug/symbol").GET(p.symbol)
	rgb.Route("/debug/trace").GET(p.trace)
	rgb.Route("/debug/*path").GET(p.path)

	return nil
}

func (p *pprofAPI) index(c *ship.Context) error {
	pprof.Index(c.Response(), c.Request())
	return nil
}

func (p *pprofAPI) cmdline(c *ship.Context) error {
	pprof.Cmdline(c.Response(), c.Request())
	return nil
}

func (p *pprofAPI) profile(c *ship.Context) error {
	pprof.Profile(c.Response(), c.Request())
	return nil
}

func (p *pprofAPI) symbol(c *ship.Context) error {
	pprof.Symbol(c.Response(), c.Request())
	return nil
}

func (p *pprofAPI) trace(c *ship.Context) error {
	pprof.Trace(c.Response(), c.Request())
	return nil
}

func (p *pprofAPI) path(c *ship.Context) error {
	path := c.Param("path")
	pprof.Handler(path).ServeHTTP(c.Response(), c.Request())
	return nil
}
