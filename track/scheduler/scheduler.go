// Package scheduler 调度器：周期扫描到期的 bot、分配代理、
// 创建任务并投递到队列，以及清扫卡死的执行。
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/infra/kfkcli"
	"github.com/cnctrack/cnctrack/track/botmod"
	"github.com/cnctrack/cnctrack/track/lifecycle"
	"github.com/cnctrack/cnctrack/track/proxypool"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Enqueuer 任务投递能力，由 kfkcli.Producer 实现。
type Enqueuer interface {
	Enqueue(ctx context.Context, msg kfkcli.TaskMessage) error
}

type Options struct {
	StuckAfter     time.Duration // 执行中超过该时长视为卡死
	ScanBatch      int           // 单轮扫描的最大派发数
	DefaultCountry string        // 代理池没有国家信息时的默认出口国家
}

func New(db *gorm.DB, store *lifecycle.Store, pool *proxypool.Pool, queue Enqueuer,
	reg *botmod.Registry, policy lifecycle.Policy, opt Options, log *slog.Logger) *Scheduler {
	if opt.ScanBatch <= 0 {
		opt.ScanBatch = 200
	}

	return &Scheduler{
		db:     db,
		store:  store,
		pool:   pool,
		queue:  queue,
		reg:    reg,
		policy: policy,
		opt:    opt,
		log:    log,
		now:    time.Now,
	}
}

type Scheduler struct {
	db     *gorm.DB
	store  *lifecycle.Store
	pool   *proxypool.Pool
	queue  Enqueuer
	reg    *botmod.Registry
	policy lifecycle.Policy
	opt    Options
	log    *slog.Logger
	now    func() time.Time
}

// ScanOnce 扫描一轮到期的 bot 并逐个派发，返回成功派发数。
// 单个 bot 派发失败不影响同轮的其他 bot。
func (sch *Scheduler) ScanOnce(ctx context.Context) (int, error) {
	now := sch.now()
	var bots []model.Bot
	err := sch.db.WithContext(ctx).
		Where("status IN ? AND next_execution IS NOT NULL AND next_execution <= ?", lifecycle.Dispatchable, now).
		Order("next_execution").
		Limit(sch.opt.ScanBatch).
		Find(&bots).Error
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, bot := range bots {
		if exx := sch.Dispatch(ctx, bot); exx != nil {
			if errors.Is(exx, lifecycle.ErrBotBusy) {
				continue // 被其他协程抢先
			}
			sch.log.Warn("bot 派发失败", slog.Int64("bot_id", bot.ID), slog.Any("error", exx))
			continue
		}
		dispatched++
	}

	return dispatched, nil
}

// Dispatch 派发单个 bot：先原子占用，再分配代理、建任务、入队。
// 占用之后的任何失败都会把 bot 转回可调度状态，不会泄漏 inprogress。
func (sch *Scheduler) Dispatch(ctx context.Context, bot model.Bot) error {
	if err := sch.store.MarkInprogress(ctx, bot.ID, bot.TrackerID); err != nil {
		return err
	}

	now := sch.now()
	proxy, err := sch.pool.Assign(bot.Country)
	if err != nil {
		// 无可用代理按一次失败处理，退避后重试。
		tr := sch.policy.Next(now, bot.FailingSpree, lifecycle.KindFailing, "无可用代理: "+bot.Country)
		if exx := sch.store.ApplyOutcome(ctx, bot.ID, bot.TrackerID, tr, nil); exx != nil {
			return exx
		}
		return err
	}

	task := &model.Task{
		BotID:  bot.ID,
		Status: model.SInprogress,
		Proxy:  proxy.URL(),
	}
	if err = sch.db.WithContext(ctx).Create(task).Error; err != nil {
		tr := sch.policy.Next(now, bot.FailingSpree, lifecycle.KindCrashed, "任务创建失败: "+err.Error())
		_ = sch.store.ApplyOutcome(ctx, bot.ID, bot.TrackerID, tr, nil)
		return err
	}

	msg := kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID}
	if err = sch.queue.Enqueue(ctx, msg); err != nil {
		// 入队失败把 bot 转回待重试，任务记录同步作废。
		metrics.GetOrCreateCounter("cnctrack_queue_error_total").Inc()
		tr := sch.policy.Next(now, bot.FailingSpree, lifecycle.KindCrashed, "任务入队失败: "+err.Error())
		_ = sch.store.ApplyOutcome(ctx, bot.ID, bot.TrackerID, tr, nil)
		_ = sch.closeTask(ctx, task.ID, model.SCrashed)
		return err
	}

	metrics.GetOrCreateCounter(fmt.Sprintf("cnctrack_dispatch_total{family=%q}", bot.Family)).Inc()
	sch.log.Info("任务已派发", slog.Int64("task_id", task.ID),
		slog.Int64("bot_id", bot.ID), slog.String("country", bot.Country))

	return nil
}

// ReconcileOnce 清扫一轮卡死的执行：执行中状态持续超过 StuckAfter
// 的 bot 按一次失败回收，对应的任务记录同步关闭。返回回收数。
func (sch *Scheduler) ReconcileOnce(ctx context.Context) (int, error) {
	now := sch.now()
	cutoff := now.Add(-sch.opt.StuckAfter)

	var bots []model.Bot
	err := sch.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", model.SInprogress, cutoff).
		Find(&bots).Error
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, bot := range bots {
		// 超时未上报按一次失败计，连败计数随之增长。
		tr := sch.policy.Next(now, bot.FailingSpree, lifecycle.KindFailing, "任务超时未上报，清扫回收")
		exx := sch.store.Reclaim(ctx, bot.ID, bot.TrackerID, cutoff, tr)
		if exx != nil {
			if errors.Is(exx, lifecycle.ErrStaleReport) {
				continue // 上报赶在清扫之前到了，结果有效
			}
			sch.log.Warn("bot 回收失败", slog.Int64("bot_id", bot.ID), slog.Any("error", exx))
			continue
		}
		reclaimed++
		metrics.GetOrCreateCounter("cnctrack_reclaimed_bot_total").Inc()
		sch.log.Warn("bot 执行卡死被回收", slog.Int64("bot_id", bot.ID),
			slog.Time("updated_at", bot.UpdatedAt))
	}

	// 任务记录只是观测数据，直接批量关闭。
	err = sch.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("status = ? AND updated_at <= ?", model.SInprogress, cutoff).
		UpdateColumns(map[string]any{
			"status":      model.SCrashed,
			"report_time": now,
			"updated_at":  now,
		}).Error

	return reclaimed, err
}

// EnsureBots 为 tracker 补齐各出口国家的 bot。
// 模块声明了国家白名单时只在白名单国家建 bot；
// 代理池没有任何可用国家时退化为默认国家的单个 bot。
func (sch *Scheduler) EnsureBots(ctx context.Context, tracker *model.Tracker) (int, error) {
	if tracker.Status == model.SArchived {
		return 0, nil
	}
	factory, ok := sch.reg.Lookup(tracker.Family)
	if !ok {
		return 0, fmt.Errorf("未注册的家族: %s", tracker.Family)
	}

	// 关键参数在建 bot 时就校验，残缺的配置不该进入调度。
	status, next, lastErr := model.SNew, true, ""
	if missing := missingParams(tracker.Config, factory.CriticalParams()); missing != "" {
		status, next, lastErr = model.SArchived, false, "缺少关键配置: "+missing
	}

	countries := sch.pool.Countries()
	if white := factory.ProxyCountries(); white != nil {
		countries = intersect(countries, white)
	}
	if len(countries) == 0 {
		countries = []string{sch.opt.DefaultCountry}
	}

	var existing []model.Bot
	err := sch.db.WithContext(ctx).
		Select("country").
		Where("tracker_id = ?", tracker.ID).
		Find(&existing).Error
	if err != nil {
		return 0, err
	}
	present := make(map[string]struct{}, len(existing))
	for _, bot := range existing {
		present[bot.Country] = struct{}{}
	}

	now := sch.now()
	created := 0
	for _, country := range countries {
		if _, exist := present[country]; exist {
			continue
		}
		bot := &model.Bot{
			TrackerID: tracker.ID,
			Family:    tracker.Family,
			Status:    status,
			State:     datatypes.JSON("{}"),
			Country:   country,
			LastError: lastErr,
		}
		if next {
			at := now
			bot.NextExecution = &at
		}
		if exx := sch.db.WithContext(ctx).Create(bot).Error; exx != nil {
			return created, exx
		}
		created++
	}

	if created != 0 {
		if exx := sch.store.Rollup(ctx, tracker.ID); exx != nil {
			return created, exx
		}
	}

	return created, nil
}

// EnsureAll 为所有未归档 tracker 补齐 bot，代理刷新引入新国家后调用。
func (sch *Scheduler) EnsureAll(ctx context.Context) (int, error) {
	var trackers []model.Tracker
	err := sch.db.WithContext(ctx).
		Where("status <> ?", model.SArchived).
		Find(&trackers).Error
	if err != nil {
		return 0, err
	}

	created := 0
	for _, tracker := range trackers {
		num, exx := sch.EnsureBots(ctx, &tracker)
		created += num
		if exx != nil {
			sch.log.Warn("补建 bot 失败", slog.Int64("tracker_id", tracker.ID), slog.Any("error", exx))
		}
	}

	return created, nil
}

func (sch *Scheduler) closeTask(ctx context.Context, taskID int64, status model.Status) error {
	now := sch.now()
	return sch.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("id = ?", taskID).
		UpdateColumns(map[string]any{
			"status":      status,
			"report_time": now,
			"updated_at":  now,
		}).Error
}

// missingParams 返回配置中缺失的第一个关键参数，全部齐备返回空串。
func missingParams(raw []byte, critical []string) string {
	if len(critical) == 0 {
		return ""
	}

	config := make(map[string]any, 16)
	if err := json.Unmarshal(raw, &config); err != nil {
		return "配置不是合法 JSON"
	}
	for _, key := range critical {
		if _, exist := config[key]; !exist {
			return key
		}
	}

	return ""
}

func intersect(all, white []string) []string {
	allow := make(map[string]struct{}, len(white))
	for _, country := range white {
		allow[country] = struct{}{}
	}

	ret := make([]string, 0, len(all))
	for _, country := range all {
		if _, ok := allow[country]; ok {
			ret = append(ret, country)
		}
	}

	return ret
}

var _ Enqueuer = (*kfkcli.Producer)(nil)
