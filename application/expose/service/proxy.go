package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/infra/proxysrc"
	"github.com/cnctrack/cnctrack/library/validation"
	"github.com/cnctrack/cnctrack/track/proxypool"
	"github.com/cnctrack/cnctrack/track/scheduler"
	"gorm.io/gorm"
)

// ErrEmptyProxyList 来源返回了空列表，多半是来源故障，
// 保留现有代理池不动。
var ErrEmptyProxyList = errors.New("代理列表为空")

func NewProxy(db *gorm.DB, source proxysrc.Source, pool *proxypool.Pool,
	sched *scheduler.Scheduler, valid *validation.Validation, log *slog.Logger) *Proxy {
	return &Proxy{db: db, source: source, pool: pool, sched: sched, valid: valid, log: log}
}

type Proxy struct {
	db     *gorm.DB
	source proxysrc.Source
	pool   *proxypool.Pool
	sched  *scheduler.Scheduler
	valid  *validation.Validation
	log    *slog.Logger
}

func (svc *Proxy) List(ctx context.Context) ([]model.Proxy, error) {
	var records []model.Proxy
	err := svc.db.WithContext(ctx).Order("country, host").Find(&records).Error
	return records, err
}

// Sync 从来源拉取最新代理列表并整体替换：数据库表、内存池一起换，
// 之后为新出现的国家补建 bot。不合法的记录跳过不入库。
func (svc *Proxy) Sync(ctx context.Context) error {
	records, err := svc.source.Fetch(ctx)
	if err != nil {
		return err
	}

	proxies := make([]model.Proxy, 0, len(records))
	for _, rec := range records {
		if exx := svc.valid.Validate(&rec); exx != nil {
			svc.log.Warn("代理记录不合法，已跳过", slog.String("host", rec.Host), slog.Any("error", exx))
			continue
		}
		proxies = append(proxies, model.Proxy{
			Host:     rec.Host,
			Port:     rec.Port,
			Country:  rec.Country,
			Username: rec.Username,
			Password: rec.Password,
		})
	}
	if len(proxies) == 0 {
		return ErrEmptyProxyList
	}

	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if exx := tx.Where("1 = 1").Delete(&model.Proxy{}).Error; exx != nil {
			return exx
		}
		return tx.CreateInBatches(proxies, 100).Error
	})
	if err != nil {
		return err
	}

	svc.pool.Replace(proxies)
	svc.log.Info("代理池已刷新", slog.Int("size", len(proxies)),
		slog.Any("countries", svc.pool.Countries()))

	// 新国家可能带来新的 bot。
	if _, err = svc.sched.EnsureAll(ctx); err != nil {
		svc.log.Warn("刷新后补建 bot 出错", slog.Any("error", err))
	}

	return nil
}

// Load 启动时从数据库恢复代理池，来源不可用也能先用旧数据跑。
func (svc *Proxy) Load(ctx context.Context) error {
	proxies, err := svc.List(ctx)
	if err != nil {
		return err
	}
	svc.pool.Replace(proxies)

	return nil
}
