package cronv3

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// TaskInfo 定时任务的元信息。
type TaskInfo struct {
	Name      string        // 任务名，用于日志
	Timeout   time.Duration // 单次执行超时，<= 0 代表不限制
	CronSched cron.Schedule // 执行计划
}

// Tasker 周期任务统一接口。
type Tasker interface {
	Info() TaskInfo
	Call(ctx context.Context) error
}

func New(ctx context.Context, log *slog.Logger) *Crontab {
	return &Crontab{
		ctx:  ctx,
		log:  log,
		cron: cron.New(),
	}
}

// Crontab 基于 robfig/cron 的任务执行器。
type Crontab struct {
	ctx  context.Context
	log  *slog.Logger
	cron *cron.Cron
}

// Submit 注册任务，Start 之前之后调用均可。
func (ct *Crontab) Submit(tasks ...Tasker) {
	for _, tsk := range tasks {
		info := tsk.Info()
		job := &cronJob{ct: ct, tsk: tsk, info: info}
		ct.cron.Schedule(info.CronSched, job)
	}
}

func (ct *Crontab) Start() { ct.cron.Start() }

// Stop 停止调度并等待在途任务结束。
func (ct *Crontab) Stop() {
	stop := ct.cron.Stop()
	<-stop.Done()
}

type cronJob struct {
	ct   *Crontab
	tsk  Tasker
	info TaskInfo
}

func (cj *cronJob) Run() {
	defer func() {
		if cause := recover(); cause != nil {
			cj.ct.log.Error("定时任务 panic", slog.String("name", cj.info.Name), slog.Any("cause", cause))
		}
	}()

	ctx := cj.ct.ctx
	if cj.info.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cj.info.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := cj.tsk.Call(ctx); err != nil {
		cj.ct.log.Warn("定时任务执行出错", slog.String("name", cj.info.Name),
			slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))
	}
}
