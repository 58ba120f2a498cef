package service

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/library/pipelog"
	"gorm.io/gorm"
)

func NewTask(db *gorm.DB, logfs pipelog.FS) *Task {
	return &Task{db: db, logfs: logfs}
}

type Task struct {
	db    *gorm.DB
	logfs pipelog.FS
}

func (svc *Task) Page(ctx context.Context, page Pages, botID int64, status string) (*PageResult[model.Task], error) {
	page = page.normalize()
	tbl := svc.db.WithContext(ctx).Model(&model.Task{})
	if botID > 0 {
		tbl = tbl.Where("bot_id = ?", botID)
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
	var records []model.Task
	err := tbl.Order("id DESC").Offset(page.offset()).Limit(page.Size).Find(&records).Error
	if err != nil {
		return nil, err
	}

	return newPageResult(page, total, records), nil
}

func (svc *Task) Get(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	if err := svc.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// Logs 输出任务执行日志的最后 n 行，n < 0 代表全部。
func (svc *Task) Logs(ctx context.Context, w io.Writer, id int64, n int) error {
	if _, err := svc.Get(ctx, id); err != nil {
		return err
	}
	name := "task-" + strconv.FormatInt(id, 10) + ".log"
	return svc.logfs.Tail(w, name, n)
}
