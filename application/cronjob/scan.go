// Package cronjob 进程内的周期任务：调度扫描、卡死清扫、
// 代理刷新和指标上报。
package cronjob

import (
	"context"
	"time"

	"github.com/cnctrack/cnctrack/library/cronv3"
	"github.com/cnctrack/cnctrack/track/scheduler"
	"github.com/robfig/cron/v3"
)

// NewScan 周期扫描到期 bot 并派发任务。
func NewScan(sched *scheduler.Scheduler, interval time.Duration) cronv3.Tasker {
	return &scanJob{sched: sched, interval: interval}
}

type scanJob struct {
	sched    *scheduler.Scheduler
	interval time.Duration
}

func (sj *scanJob) Info() cronv3.TaskInfo {
	return cronv3.TaskInfo{
		Name:      "调度扫描",
		Timeout:   sj.interval,
		CronSched: cron.Every(sj.interval),
	}
}

func (sj *scanJob) Call(ctx context.Context) error {
	_, err := sj.sched.ScanOnce(ctx)
	return err
}
