package restapi

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cnctrack/cnctrack/application/expose/service"
	"github.com/xgfone/ship/v5"
)

func NewStats(svc *service.Stats) *Stats {
	return &Stats{svc: svc}
}

type Stats struct {
	svc *service.Stats
}

func (rest *Stats) BindRoute(rgb *ship.RouteGroupBuilder) error {
	rgb.Route("/stats/summary").GET(rest.summary)
	rgb.Route("/metrics").GET(rest.metrics)
	return nil
}

func (rest *Stats) summary(c *ship.Context) error {
	ctx := c.Request().Context()
	ret, err := rest.svc.Summary(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ret)
}

// metrics Prometheus 拉取端点，进程指标和业务水位一起输出。
func (rest *Stats) metrics(c *ship.Context) error {
	c.SetRespHeader(ship.HeaderContentType, ship.MIMETextPlainCharsetUTF8)
	c.WriteHeader(http.StatusOK)

	w := c.Response()
	metrics.WritePrometheus(w, true)
	metrics.WriteFDMetrics(w)
	rest.svc.WriteMetrics(w)

	return nil
}
