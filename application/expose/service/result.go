package service

import (
	"context"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"gorm.io/gorm"
)

func NewResult(db *gorm.DB) *Result {
	return &Result{db: db}
}

type Result struct {
	db *gorm.DB
}

func (svc *Result) Page(ctx context.Context, page Pages) (*PageResult[model.Result], error) {
	page = page.normalize()
	tbl := svc.db.WithContext(ctx).Model(&model.Result{})

	var total int64
	if err := tbl.Count(&total).Error; err != nil {
		return nil, err
	}
	var records []model.Result
	err := tbl.Order("id DESC").Offset(page.offset()).Limit(page.Size).Find(&records).Error
	if err != nil {
		return nil, err
	}

	return newPageResult(page, total, records), nil
}

func (svc *Result) ByTask(ctx context.Context, taskID int64) ([]model.Result, error) {
	var records []model.Result
	err := svc.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id").Find(&records).Error
	return records, err
}

func (svc *Result) ByBot(ctx context.Context, botID int64) ([]model.Result, error) {
	sub := svc.db.Model(&model.Task{}).Select("id").Where("bot_id = ?", botID)
	var records []model.Result
	err := svc.db.WithContext(ctx).Where("task_id IN (?)", sub).Order("id DESC").Find(&records).Error
	return records, err
}

func (svc *Result) ByTracker(ctx context.Context, trackerID int64) ([]model.Result, error) {
	bots := svc.db.Model(&model.Bot{}).Select("id").Where("tracker_id = ?", trackerID)
	tasks := svc.db.Model(&model.Task{}).Select("id").Where("bot_id IN (?)", bots)
	var records []model.Result
	err := svc.db.WithContext(ctx).Where("task_id IN (?)", tasks).Order("id DESC").Find(&records).Error
	return records, err
}
