package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/infra/mwdbcli"
	"github.com/cnctrack/cnctrack/track/botmod"
	"github.com/cnctrack/cnctrack/track/lifecycle"
	"github.com/cnctrack/cnctrack/track/scheduler"
	"gorm.io/gorm"
)

func NewTracker(db *gorm.DB, store *lifecycle.Store, sched *scheduler.Scheduler,
	reg *botmod.Registry, log *slog.Logger) *Tracker {
	return &Tracker{db: db, store: store, sched: sched, reg: reg, log: log}
}

type Tracker struct {
	db    *gorm.DB
	store *lifecycle.Store
	sched *scheduler.Scheduler
	reg   *botmod.Registry
	log   *slog.Logger
}

type TrackerSubmit struct {
	Family string         `json:"family" validate:"required,lte=64"`
	Config map[string]any `json:"config" validate:"required"`
}

// Submit 提交追踪配置。配置按指纹去重：指纹已存在时直接返回
// 既有 tracker，不会重复建 bot。
func (svc *Tracker) Submit(ctx context.Context, req *TrackerSubmit) (*model.Tracker, error) {
	if _, ok := svc.reg.Lookup(req.Family); !ok {
		return nil, fmt.Errorf("未注册的家族: %s", req.Family)
	}

	hash, err := mwdbcli.ConfigHash(req.Config)
	if err != nil {
		return nil, fmt.Errorf("配置指纹计算失败: %w", err)
	}

	var exist model.Tracker
	err = svc.db.WithContext(ctx).Where("config_hash = ?", hash).First(&exist).Error
	if err == nil {
		return &exist, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	raw, err := json.Marshal(req.Config)
	if err != nil {
		return nil, err
	}
	tracker := &model.Tracker{
		ConfigHash: hash,
		Config:     raw,
		Family:     req.Family,
		Status:     model.SNew,
	}
	if err = svc.db.WithContext(ctx).Create(tracker).Error; err != nil {
		return nil, err
	}

	num, err := svc.sched.EnsureBots(ctx, tracker)
	if err != nil {
		return nil, err
	}
	svc.log.Info("新 tracker 已入库", slog.Int64("tracker_id", tracker.ID),
		slog.String("family", tracker.Family), slog.Int("bots", num))

	return tracker, nil
}

func (svc *Tracker) Page(ctx context.Context, page Pages, family, status string) (*PageResult[model.Tracker], error) {
	page = page.normalize()
	tbl := svc.db.WithContext(ctx).Model(&model.Tracker{})
	if family != "" {
		tbl = tbl.Where("family = ?", family)
	}
	if status != "" {
		st, ok := model.ParseStatus(status)
		if !ok {
			return nil, fmt.Errorf("无法识别的状态: %s", status)
		}
		tbl = tbl.Where("status = ?", st)
	}

	var total int64
	if err := tbl.Count(&total).Error; err != nil {
		return nil, err
	}
	var records []model.Tracker
	err := tbl.Order("id DESC").Offset(page.offset()).Limit(page.Size).Find(&records).Error
	if err != nil {
		return nil, err
	}

	return newPageResult(page, total, records), nil
}

// TrackerDetail tracker 及其名下全部 bot。
type TrackerDetail struct {
	model.Tracker
	Bots []model.Bot `json:"bots"`
}

func (svc *Tracker) Detail(ctx context.Context, id int64) (*TrackerDetail, error) {
	var tracker model.Tracker
	if err := svc.db.WithContext(ctx).First(&tracker, id).Error; err != nil {
		return nil, err
	}

	ret := &TrackerDetail{Tracker: tracker}
	err := svc.db.WithContext(ctx).Where("tracker_id = ?", id).Order("id").Find(&ret.Bots).Error
	if err != nil {
		return nil, err
	}

	return ret, nil
}

// Archive 归档 tracker：逐个归档名下 bot，汇总状态随之收敛为 archived。
func (svc *Tracker) Archive(ctx context.Context, id int64, reason string) error {
	var tracker model.Tracker
	if err := svc.db.WithContext(ctx).First(&tracker, id).Error; err != nil {
		return err
	}
	if reason == "" {
		reason = "人工归档"
	}

	var bots []model.Bot
	if err := svc.db.WithContext(ctx).Where("tracker_id = ?", id).Find(&bots).Error; err != nil {
		return err
	}
	for _, bot := range bots {
		if bot.Status == model.SArchived {
			continue
		}
		if err := svc.store.Archive(ctx, bot.ID, id, reason); err != nil {
			return err
		}
	}

	return svc.store.Rollup(ctx, id)
}

// Families 已注册可用的家族模块。
func (svc *Tracker) Families() []string {
	return svc.reg.Families()
}
