// Package worker 任务执行器：从队列取任务，驱动家族模块逐个尝试
// 候选 C2 地址，把结果折算成状态转移并回写。
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/infra/kfkcli"
	"github.com/cnctrack/cnctrack/library/logger"
	"github.com/cnctrack/cnctrack/library/pipelog"
	"github.com/cnctrack/cnctrack/track/botmod"
	"github.com/cnctrack/cnctrack/track/lifecycle"
	"github.com/cnctrack/cnctrack/track/respipe"
	"gorm.io/gorm"
)

// Dequeuer 任务消费能力，由 kfkcli.Consumer 实现。
type Dequeuer interface {
	Dequeue(ctx context.Context) (*kfkcli.Delivery, error)
	Ack(ctx context.Context, d *kfkcli.Delivery) error
}

func New(db *gorm.DB, store *lifecycle.Store, pipe *respipe.Pipeline, reg *botmod.Registry,
	policy lifecycle.Policy, timeout time.Duration, logfs pipelog.FS, log *slog.Logger) *Worker {
	return &Worker{
		db:      db,
		store:   store,
		pipe:    pipe,
		reg:     reg,
		policy:  policy,
		timeout: timeout,
		logfs:   logfs,
		log:     log,
		now:     time.Now,
	}
}

type Worker struct {
	db      *gorm.DB
	store   *lifecycle.Store
	pipe    *respipe.Pipeline
	reg     *botmod.Registry
	policy  lifecycle.Policy
	timeout time.Duration
	logfs   pipelog.FS
	log     *slog.Logger
	now     func() time.Time
}

// Run 消费循环，ctx 取消后返回。
// 每条消息不论执行结果如何都会 Ack：状态机落库失败时消息重投有效，
// 落库成功后重投会因 bot 状态不再是 inprogress 而被丢弃，天然幂等。
func (w *Worker) Run(ctx context.Context, queue Dequeuer) error {
	for {
		delivery, err := queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("取任务消息出错", slog.Any("error", err))
			continue
		}

		w.Execute(ctx, delivery.TaskMessage)

		if err = queue.Ack(ctx, delivery); err != nil && ctx.Err() == nil {
			w.log.Warn("消息确认失败", slog.Int64("task_id", delivery.TaskID), slog.Any("error", err))
		}
	}
}

// Execute 执行单条任务消息。
func (w *Worker) Execute(ctx context.Context, msg kfkcli.TaskMessage) {
	log := w.log.With(slog.Int64("task_id", msg.TaskID), slog.Int64("bot_id", msg.BotID))

	var task model.Task
	if err := w.db.WithContext(ctx).First(&task, msg.TaskID).Error; err != nil {
		log.Warn("任务记录不存在，消息丢弃", slog.Any("error", err))
		return
	}
	if task.Status != model.SInprogress {
		log.Info("任务已终结，重投消息丢弃", slog.String("status", task.Status.String()))
		return
	}

	var bot model.Bot
	if err := w.db.WithContext(ctx).First(&bot, msg.BotID).Error; err != nil {
		log.Warn("bot 不存在，消息丢弃", slog.Any("error", err))
		_ = w.closeTask(ctx, task.ID, model.SCrashed)
		return
	}
	if bot.Status != model.SInprogress {
		// 清扫器已把 bot 回收，这次执行作废。
		log.Info("bot 已被回收，消息丢弃", slog.String("status", bot.Status.String()))
		_ = w.closeTask(ctx, task.ID, model.SCrashed)
		return
	}

	var tracker model.Tracker
	if err := w.db.WithContext(ctx).First(&tracker, bot.TrackerID).Error; err != nil {
		log.Warn("tracker 不存在，消息丢弃", slog.Any("error", err))
		_ = w.closeTask(ctx, task.ID, model.SCrashed)
		return
	}

	kind, reason, state := w.run(ctx, &tracker, &bot, &task, log)

	tr := w.policy.Next(w.now(), bot.FailingSpree, kind, reason)
	if err := w.store.ApplyOutcome(ctx, bot.ID, bot.TrackerID, tr, state); err != nil {
		if errors.Is(err, lifecycle.ErrStaleReport) {
			log.Warn("结果上报晚于清扫回收，已作废")
			_ = w.closeTask(ctx, task.ID, model.SCrashed)
			return
		}
		log.Error("状态转移落库失败", slog.Any("error", err))
		return
	}
	_ = w.closeTask(ctx, task.ID, tr.Status)

	metrics.GetOrCreateCounter(fmt.Sprintf("cnctrack_task_total{family=%q,outcome=%q}", bot.Family, kind)).Inc()
	log.Info("任务执行完毕", slog.String("outcome", kind.String()),
		slog.String("status", tr.Status.String()), slog.Int("failing_spree", tr.FailingSpree))
}

// run 驱动模块完成一次执行，返回结果类别、原因和任务结束时的模块状态。
// state 为 nil 代表状态未动，不回写。
func (w *Worker) run(ctx context.Context, tracker *model.Tracker, bot *model.Bot,
	task *model.Task, log *slog.Logger) (lifecycle.Kind, string, []byte) {
	factory, ok := w.reg.Lookup(bot.Family)
	if !ok {
		return lifecycle.KindCrashed, "未注册的家族: " + bot.Family, nil
	}

	config := make(map[string]any, 16)
	if err := json.Unmarshal(tracker.Config, &config); err != nil {
		return lifecycle.KindCrashed, "配置解析失败: " + err.Error(), nil
	}
	for _, key := range factory.CriticalParams() {
		if _, exist := config[key]; !exist {
			// 关键参数残缺无法修复，直接归档。
			return lifecycle.KindArchived, "缺少关键配置: " + key, nil
		}
	}
	config["_id"] = tracker.ConfigHash

	state := make(map[string]any, 16)
	if len(bot.State) != 0 {
		if err := json.Unmarshal(bot.State, &state); err != nil {
			return lifecycle.KindCrashed, "模块状态解析失败: " + err.Error(), nil
		}
	}

	taskLog, closeLog := w.openTaskLog(task.ID, log)
	defer closeLog()

	env := botmod.Env{
		Config:  config,
		State:   state,
		Proxy:   task.Proxy,
		Results: w.pipe.Session(task.ID, bot.Family, tracker.ConfigHash),
		Log:     taskLog,
	}

	timeout := w.timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	kind, reason := w.attempts(ctx, factory, env, taskLog)

	raw, err := json.Marshal(env.State)
	if err != nil {
		log.Warn("模块状态序列化失败", slog.Any("error", err))
		raw = nil
	}

	return kind, reason, raw
}

// attempts 枚举候选地址并逐个尝试，累计结果。
// 模块返回错误或 panic 视为崩溃，整个任务立即终止，累计结果作废。
func (w *Worker) attempts(ctx context.Context, factory botmod.Factory,
	env botmod.Env, log *slog.Logger) (lifecycle.Kind, string) {
	mod, err := factory.New(ctx, env)
	if err != nil {
		return lifecycle.KindCrashed, "模块构造失败: " + err.Error()
	}

	addrs, err := mod.Endpoints(ctx)
	if err != nil {
		return lifecycle.KindCrashed, "候选地址枚举失败: " + err.Error()
	}
	if len(addrs) == 0 {
		return lifecycle.KindFailing, "没有候选地址"
	}

	var merged botmod.Outcome
	for _, addr := range addrs {
		out, exx := w.attempt(ctx, mod, addr)
		if exx != nil {
			log.Error("模块执行出错", slog.String("addr", string(addr)), slog.Any("error", exx))
			return lifecycle.KindCrashed, exx.Error()
		}

		log.Info("候选地址尝试完毕", slog.String("addr", string(addr)),
			slog.Bool("working", out.Working), slog.Bool("continue", out.Continue),
			slog.Bool("archive", out.Archive))

		merged = merged.Merge(out)
		if !out.Continue {
			break
		}
	}

	switch {
	case merged.Archive:
		return lifecycle.KindArchived, "模块要求归档"
	case merged.Working:
		return lifecycle.KindWorking, ""
	default:
		return lifecycle.KindFailing, "所有候选地址均无产出"
	}
}

// attempt 带 panic 防护的单次尝试，家族模块是外部代码，不可信。
func (w *Worker) attempt(ctx context.Context, mod botmod.Module, addr botmod.Address) (out botmod.Outcome, err error) {
	defer func() {
		if cause := recover(); cause != nil {
			out = botmod.Outcome{}
			err = fmt.Errorf("模块 panic: %v", cause)
		}
	}()

	return mod.Attempt(ctx, addr)
}

// openTaskLog 打开任务专属日志，模块日志同时写任务文件和主日志。
// 打开失败时降级为只写主日志，不阻断执行。
func (w *Worker) openTaskLog(taskID int64, log *slog.Logger) (*slog.Logger, func()) {
	name := "task-" + strconv.FormatInt(taskID, 10) + ".log"
	file, err := w.logfs.Open(name)
	if err != nil {
		log.Warn("任务日志打开失败", slog.Any("error", err))
		return log, func() {}
	}

	fh := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	taskLog := slog.New(logger.Multi(log.Handler(), fh))

	return taskLog, func() { _ = file.Close() }
}

func (w *Worker) closeTask(ctx context.Context, taskID int64, status model.Status) error {
	now := w.now()
	return w.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("id = ? AND status = ?", taskID, model.SInprogress).
		UpdateColumns(map[string]any{
			"status":      status,
			"report_time": now,
			"updated_at":  now,
		}).Error
}

var _ Dequeuer = (*kfkcli.Consumer)(nil)
