package cronjob

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cnctrack/cnctrack/application/expose/service"
	"github.com/cnctrack/cnctrack/config"
	"github.com/cnctrack/cnctrack/library/cronv3"
	"github.com/robfig/cron/v3"
)

// NewMetrics 周期向 VictoriaMetrics 推送进程和业务指标。
func NewMetrics(cfg config.Metrics, stats *service.Stats) cronv3.Tasker {
	hostname, _ := os.Hostname()
	label := fmt.Sprintf(`instance=%q,goos=%q,goarch=%q`, hostname, runtime.GOOS, runtime.GOARCH)

	interval := time.Duration(cfg.Interval)
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &metricsJob{cfg: cfg, stats: stats, label: label, interval: interval}
}

type metricsJob struct {
	cfg      config.Metrics
	stats    *service.Stats
	label    string
	interval time.Duration
}

func (mj *metricsJob) Info() cronv3.TaskInfo {
	return cronv3.TaskInfo{
		Name:      "上报系统指标",
		Timeout:   mj.interval,
		CronSched: cron.Every(mj.interval),
	}
}

func (mj *metricsJob) Call(ctx context.Context) error {
	opts := &metrics.PushOptions{ExtraLabels: mj.label}
	if mj.cfg.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(mj.cfg.Username + ":" + mj.cfg.Password))
		opts.Headers = []string{"Authorization: Basic " + token}
	}

	return metrics.PushMetricsExt(ctx, mj.cfg.PushURL, mj.write, opts)
}

func (mj *metricsJob) write(w io.Writer) {
	metrics.WritePrometheus(w, true)
	metrics.WriteFDMetrics(w)
	mj.stats.WriteMetrics(w)
}
