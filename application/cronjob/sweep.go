package cronjob

import (
	"context"
	"time"

	"github.com/cnctrack/cnctrack/library/cronv3"
	"github.com/cnctrack/cnctrack/track/scheduler"
	"github.com/robfig/cron/v3"
)

// NewSweep 周期清扫卡死的执行。
func NewSweep(sched *scheduler.Scheduler, interval time.Duration) cronv3.Tasker {
	return &sweepJob{sched: sched, interval: interval}
}

type sweepJob struct {
	sched    *scheduler.Scheduler
	interval time.Duration
}

func (sj *sweepJob) Info() cronv3.TaskInfo {
	return cronv3.TaskInfo{
		Name:      "卡死任务清扫",
		Timeout:   sj.interval,
		CronSched: cron.Every(sj.interval),
	}
}

func (sj *sweepJob) Call(ctx context.Context) error {
	_, err := sj.sched.ReconcileOnce(ctx)
	return err
}
