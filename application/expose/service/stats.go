package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/track/proxypool"
	"gorm.io/gorm"
)

func NewStats(db *gorm.DB, pool *proxypool.Pool) *Stats {
	return &Stats{db: db, pool: pool}
}

type Stats struct {
	db   *gorm.DB
	pool *proxypool.Pool
}

// Summary 全局概览。
type Summary struct {
	Trackers    map[string]int64            `json:"trackers"` // 按状态统计
	Bots        map[string]int64            `json:"bots"`
	BotFamilies map[string]map[string]int64 `json:"bot_families"` // 家族 × 状态
	Tasks       map[string]int64            `json:"tasks"`
	Proxies     int                         `json:"proxies"`
}

func (svc *Stats) Summary(ctx context.Context) (*Summary, error) {
	ret := &Summary{Proxies: svc.pool.Size()}

	var err error
	if ret.Trackers, err = svc.countByStatus(ctx, &model.Tracker{}); err != nil {
		return nil, err
	}
	if ret.BotFamilies, err = svc.countBotsByFamily(ctx); err != nil {
		return nil, err
	}
	if ret.Tasks, err = svc.countByStatus(ctx, &model.Task{}); err != nil {
		return nil, err
	}

	ret.Bots = make(map[string]int64, 8)
	for _, byStatus := range ret.BotFamilies {
		for status, total := range byStatus {
			ret.Bots[status] += total
		}
	}

	return ret, nil
}

func (svc *Stats) countBotsByFamily(ctx context.Context) (map[string]map[string]int64, error) {
	var rows []struct {
		Family string
		Status model.Status
		Total  int64
	}
	err := svc.db.WithContext(ctx).
		Model(&model.Bot{}).
		Select("family, status, COUNT(*) AS total").
		Group("family").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	ret := make(map[string]map[string]int64, len(rows))
	for _, row := range rows {
		byStatus := ret[row.Family]
		if byStatus == nil {
			byStatus = make(map[string]int64, 4)
			ret[row.Family] = byStatus
		}
		byStatus[row.Status.String()] = row.Total
	}

	return ret, nil
}

func (svc *Stats) countByStatus(ctx context.Context, table any) (map[string]int64, error) {
	var rows []struct {
		Status model.Status
		Total  int64
	}
	err := svc.db.WithContext(ctx).
		Model(table).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	ret := make(map[string]int64, len(rows))
	for _, row := range rows {
		ret[row.Status.String()] = row.Total
	}

	return ret, nil
}

// WriteMetrics 把业务水位写成 Prometheus 指标，/metrics 和推送共用。
func (svc *Stats) WriteMetrics(w io.Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sum, err := svc.Summary(ctx)
	if err != nil {
		return
	}

	writeGauges(w, "cnctrack_trackers", sum.Trackers)
	for family, byStatus := range sum.BotFamilies {
		for status, total := range byStatus {
			full := fmt.Sprintf("cnctrack_bots{family=%q,status=%q}", family, status)
			metrics.WriteGaugeUint64(w, full, uint64(total))
		}
	}
	writeGauges(w, "cnctrack_tasks", sum.Tasks)
	metrics.WriteGaugeUint64(w, "cnctrack_proxies", uint64(sum.Proxies))
}

func writeGauges(w io.Writer, name string, byStatus map[string]int64) {
	for status, total := range byStatus {
		full := fmt.Sprintf("%s{status=%q}", name, status)
		metrics.WriteGaugeUint64(w, full, uint64(total))
	}
}
