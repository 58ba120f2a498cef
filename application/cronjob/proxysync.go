package cronjob

import (
	"context"
	"time"

	"github.com/cnctrack/cnctrack/application/expose/service"
	"github.com/cnctrack/cnctrack/library/cronv3"
	"github.com/robfig/cron/v3"
)

// NewProxySync 周期刷新代理池。
func NewProxySync(svc *service.Proxy, interval time.Duration) cronv3.Tasker {
	return &proxySyncJob{svc: svc, interval: interval}
}

type proxySyncJob struct {
	svc      *service.Proxy
	interval time.Duration
}

func (pj *proxySyncJob) Info() cronv3.TaskInfo {
	return cronv3.TaskInfo{
		Name:      "代理池刷新",
		Timeout:   time.Minute,
		CronSched: cron.Every(pj.interval),
	}
}

func (pj *proxySyncJob) Call(ctx context.Context) error {
	return pj.svc.Sync(ctx)
}
