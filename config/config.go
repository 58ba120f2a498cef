package config

import "time"

type Config struct {
	Server    Server    `json:"server"`
	Database  Database  `json:"database"  validate:"required"`
	Kafka     Kafka     `json:"kafka"     validate:"required"`
	Artifact  Artifact  `json:"artifact"  validate:"required"`
	Proxy     Proxy     `json:"proxy"     validate:"required"`
	Tracker   Tracker   `json:"tracker"`
	Logger    Logger    `json:"logger"`
	Metrics   Metrics   `json:"metrics"`
	Pyroscope Pyroscope `json:"pyroscope"`
}

// Normalize 填充未配置项的默认值。
func (c *Config) Normalize() {
	c.Server.normalize()
	c.Database.normalize()
	c.Kafka.normalize()
	c.Artifact.normalize()
	c.Tracker.normalize()
}

type Server struct {
	Bind string `json:"bind"` // HTTP 服务监听地址
}

func (s *Server) normalize() {
	if s.Bind == "" {
		s.Bind = ":8080"
	}
}

type Database struct {
	DSN         string   `json:"dsn" validate:"required"`
	MaxOpenConn int      `json:"max_open_conn"`
	MaxIdleConn int      `json:"max_idle_conn"`
	MaxLifeTime Duration `json:"max_life_time"`
	MaxIdleTime Duration `json:"max_idle_time"`
	Migrate     bool     `json:"migrate"` // 启动时自动建表
}

func (d *Database) normalize() {
	if d.MaxOpenConn <= 0 {
		d.MaxOpenConn = 20
	}
	if d.MaxIdleConn <= 0 {
		d.MaxIdleConn = 5
	}
	if d.MaxLifeTime <= 0 {
		d.MaxLifeTime = Duration(time.Hour)
	}
	if d.MaxIdleTime <= 0 {
		d.MaxIdleTime = Duration(10 * time.Minute)
	}
}

type Kafka struct {
	Brokers []string `json:"brokers" validate:"gte=1,lte=100,dive,required"`
	Topic   string   `json:"topic"`
	Group   string   `json:"group"`
	Workers int      `json:"workers"` // 并发执行任务的 worker 数量
}

func (k *Kafka) normalize() {
	if k.Topic == "" {
		k.Topic = "cnctrack-tasks"
	}
	if k.Group == "" {
		k.Group = "cnctrack-worker"
	}
	if k.Workers <= 0 {
		k.Workers = 4
	}
}

// Artifact 外部制品库（内容寻址存储）配置。
type Artifact struct {
	URL   string  `json:"url" validate:"required,url"`
	Token string  `json:"token"`
	QPS   float64 `json:"qps"` // 上传限速
}

func (a *Artifact) normalize() {
	if a.QPS <= 0 {
		a.QPS = 5
	}
}

type Proxy struct {
	Method  string `json:"method" validate:"oneof=file url"` // 代理列表来源
	Path    string `json:"path"    validate:"required_if=Method file"`
	URL     string `json:"url"     validate:"required_if=Method url"`
	Default string `json:"default" validate:"required"` // 默认国家代码，例如 "us"
}

// Tracker 调度核心的各项参数。
type Tracker struct {
	ScanInterval    Duration `json:"scan_interval"`     // 扫描待执行 bot 的周期
	HealthyInterval Duration `json:"healthy_interval"`  // 健康 bot 的复查间隔
	BackoffBase     Duration `json:"backoff_base"`      // 失败退避基数
	BackoffCap      Duration `json:"backoff_cap"`       // 失败退避上限
	CrashRetry      Duration `json:"crash_retry"`       // 崩溃后的固定重试间隔
	TaskTimeout     Duration `json:"task_timeout"`      // 单个任务的执行超时
	StuckAfter      Duration `json:"stuck_after"`       // inprogress 超过该时长视为卡死
	SweepInterval   Duration `json:"sweep_interval"`    // 卡死巡检周期
	ProxyRefresh    Duration `json:"proxy_refresh"`     // 代理列表刷新周期
	MaxFailingSpree int      `json:"max_failing_spree"` // 连续失败多少次后归档
	LogDir          string   `json:"log_dir"`           // 任务执行日志目录
	LogMaxSize      int64    `json:"log_max_size"`      // 单个任务日志的大小上限
}

func (t *Tracker) normalize() {
	if t.ScanInterval <= 0 {
		t.ScanInterval = Duration(time.Minute)
	}
	if t.HealthyInterval <= 0 {
		t.HealthyInterval = Duration(12 * time.Hour)
	}
	if t.BackoffBase <= 0 {
		t.BackoffBase = Duration(time.Hour)
	}
	if t.BackoffCap <= 0 {
		t.BackoffCap = Duration(24 * time.Hour)
	}
	if t.CrashRetry <= 0 {
		t.CrashRetry = Duration(15 * time.Minute)
	}
	if t.TaskTimeout <= 0 {
		t.TaskTimeout = Duration(15 * time.Minute)
	}
	if t.StuckAfter <= 0 {
		t.StuckAfter = 2 * t.TaskTimeout
	}
	if t.SweepInterval <= 0 {
		t.SweepInterval = Duration(5 * time.Minute)
	}
	if t.ProxyRefresh <= 0 {
		t.ProxyRefresh = Duration(time.Hour)
	}
	if t.MaxFailingSpree <= 0 {
		t.MaxFailingSpree = 5
	}
	if t.LogDir == "" {
		t.LogDir = "resources/tasklog"
	}
	if t.LogMaxSize <= 0 {
		t.LogMaxSize = 1024 * 1024
	}
}

type Logger struct {
	Level    string `json:"level"`    // debug/info/warn/error
	Console  bool   `json:"console"`  // 是否输出到控制台
	Filename string `json:"filename"` // 为空代表不写日志文件
	MaxSize  int    `json:"max_size"` // 单位 MB
	Backups  int    `json:"backups"`
}

type Metrics struct {
	PushURL  string   `json:"push_url"` // 为空代表不推送
	Interval Duration `json:"interval"`
	Username string   `json:"username"`
	Password string   `json:"password"`
}

type Pyroscope struct {
	URL      string `json:"url"` // 为空代表不开启
	Username string `json:"username"`
	Password string `json:"password"`
}
