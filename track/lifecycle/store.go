package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"gorm.io/gorm"
)

var (
	// ErrBotBusy 并发调度竞争失败，bot 已被其他协程占用或状态已变。
	ErrBotBusy = errors.New("bot 已处于执行中或不可调度状态")

	// ErrStaleReport 任务上报晚于清扫回收，结果作废。
	ErrStaleReport = errors.New("任务结果已过期")
)

// Dispatchable 可被调度翻转为 inprogress 的状态集合。
var Dispatchable = []model.Status{model.SCrashed, model.SWorking, model.SFailing, model.SNew}

// Store 状态机的落库层。所有状态写入都走条件更新，
// 依赖 WHERE 子句保证互斥，不依赖上层加锁。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// MarkInprogress 原子地把 bot 从可调度状态翻转为执行中。
// 两个调度协程争抢同一个 bot 时只有一个能成功，失败方收到 ErrBotBusy。
func (s *Store) MarkInprogress(ctx context.Context, botID, trackerID int64) error {
	ret := s.db.WithContext(ctx).
		Model(&model.Bot{}).
		Where("id = ? AND status IN ?", botID, Dispatchable).
		UpdateColumns(map[string]any{
			"status":     model.SInprogress,
			"updated_at": time.Now(),
		})
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return ErrBotBusy
	}

	return s.Rollup(ctx, trackerID)
}

// ApplyOutcome 把任务结果落到 bot 上。仅当 bot 仍处于执行中时生效，
// 已被清扫回收的迟到上报返回 ErrStaleReport，不覆盖新状态。
// state 为 nil 时不改动模块状态。
func (s *Store) ApplyOutcome(ctx context.Context, botID, trackerID int64, tr Transition, state []byte) error {
	cols := map[string]any{
		"status":         tr.Status,
		"failing_spree":  tr.FailingSpree,
		"next_execution": tr.NextExecution,
		"last_error":     tr.LastError,
		"updated_at":     time.Now(),
	}
	if state != nil {
		cols["state"] = state
	}

	ret := s.db.WithContext(ctx).
		Model(&model.Bot{}).
		Where("id = ? AND status = ?", botID, model.SInprogress).
		UpdateColumns(cols)
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return ErrStaleReport
	}

	return s.Rollup(ctx, trackerID)
}

// Reclaim 清扫卡死任务时回收 bot。除了要求仍处于执行中，
// 还要求 updated_at 早于卡死判定线，避免误伤刚刚重新派发的 bot。
func (s *Store) Reclaim(ctx context.Context, botID, trackerID int64, cutoff time.Time, tr Transition) error {
	cols := map[string]any{
		"status":         tr.Status,
		"failing_spree":  tr.FailingSpree,
		"next_execution": tr.NextExecution,
		"last_error":     tr.LastError,
		"updated_at":     time.Now(),
	}

	ret := s.db.WithContext(ctx).
		Model(&model.Bot{}).
		Where("id = ? AND status = ? AND updated_at <= ?", botID, model.SInprogress, cutoff).
		UpdateColumns(cols)
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return ErrStaleReport
	}

	return s.Rollup(ctx, trackerID)
}

// Archive 人工归档，绕过状态机直接置终态。执行中的 bot 也允许归档，
// 迟到的任务上报会因状态不再是 inprogress 而作废。
func (s *Store) Archive(ctx context.Context, botID, trackerID int64, reason string) error {
	ret := s.db.WithContext(ctx).
		Model(&model.Bot{}).
		Where("id = ? AND status <> ?", botID, model.SArchived).
		UpdateColumns(map[string]any{
			"status":         model.SArchived,
			"next_execution": nil,
			"last_error":     reason,
			"updated_at":     time.Now(),
		})
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return s.Rollup(ctx, trackerID)
}

// Revive 人工复活已归档的 bot：状态置为 new、失败计数清零、立即可调度。
func (s *Store) Revive(ctx context.Context, botID, trackerID int64) error {
	now := time.Now()
	ret := s.db.WithContext(ctx).
		Model(&model.Bot{}).
		Where("id = ? AND status = ?", botID, model.SArchived).
		UpdateColumns(map[string]any{
			"status":         model.SNew,
			"failing_spree":  0,
			"next_execution": now,
			"last_error":     "",
			"updated_at":     now,
		})
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return s.Rollup(ctx, trackerID)
}

// Rollup 重算 tracker 的汇总状态：取名下所有 bot 状态的最小值。
// 任何 bot 状态变更后都必须调用，保证汇总视图不滞后。
func (s *Store) Rollup(ctx context.Context, trackerID int64) error {
	sub := s.db.Model(&model.Bot{}).
		Select("MIN(status)").
		Where("tracker_id = ?", trackerID)

	return s.db.WithContext(ctx).
		Model(&model.Tracker{}).
		Where("id = ?", trackerID).
		UpdateColumns(map[string]any{
			"status":     gorm.Expr("COALESCE((?), ?)", sub, model.SArchived),
			"updated_at": time.Now(),
		}).Error
}
