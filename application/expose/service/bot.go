package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/track/lifecycle"
	"gorm.io/gorm"
)

func NewBot(db *gorm.DB, store *lifecycle.Store, log *slog.Logger) *Bot {
	return &Bot{db: db, store: store, log: log}
}

type Bot struct {
	db    *gorm.DB
	store *lifecycle.Store
	log   *slog.Logger
}

func (svc *Bot) Page(ctx context.Context, page Pages, trackerID int64, status string) (*PageResult[model.Bot], error) {
	page = page.normalize()
	tbl := svc.db.WithContext(ctx).Model(&model.Bot{})
	if trackerID > 0 {
		tbl = tbl.Where("tracker_id = ?", trackerID)
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
	var records []model.Bot
	err := tbl.Order("id DESC").Offset(page.offset()).Limit(page.Size).Find(&records).Error
	if err != nil {
		return nil, err
	}

	return newPageResult(page, total, records), nil
}

func (svc *Bot) Get(ctx context.Context, id int64) (*model.Bot, error) {
	var bot model.Bot
	if err := svc.db.WithContext(ctx).First(&bot, id).Error; err != nil {
		return nil, err
	}
	return &bot, nil
}

// Archive 人工归档 bot。执行中的 bot 也会被归档，迟到的结果作废。
func (svc *Bot) Archive(ctx context.Context, id int64, reason string) error {
	bot, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "人工归档"
	}

	if err = svc.store.Archive(ctx, bot.ID, bot.TrackerID, reason); err != nil {
		return err
	}
	svc.log.Info("bot 已人工归档", slog.Int64("bot_id", id), slog.String("reason", reason))

	return nil
}

// Revive 复活已归档的 bot，失败计数清零，下一轮扫描即可调度。
func (svc *Bot) Revive(ctx context.Context, id int64) error {
	bot, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}

	if err = svc.store.Revive(ctx, bot.ID, bot.TrackerID); err != nil {
		return err
	}
	svc.log.Info("bot 已复活", slog.Int64("bot_id", id))

	return nil
}
