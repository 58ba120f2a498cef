package model

import (
	"net"
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// Tracker 一条追踪配置：某个家族的静态配置及其指纹。
// tracker 只会被归档，不会被删除。
type Tracker struct {
	ID         int64          `json:"id"          gorm:"column:id;primaryKey"`
	ConfigHash string         `json:"config_hash" gorm:"column:config_hash;size:64;uniqueIndex"`
	Config     datatypes.JSON `json:"config"      gorm:"column:config"`
	Family     string         `json:"family"      gorm:"column:family;size:64;index"`
	Status     Status         `json:"status"      gorm:"column:status"`
	CreatedAt  time.Time      `json:"created_at"  gorm:"column:created_at"`
	UpdatedAt  time.Time      `json:"updated_at"  gorm:"column:updated_at"`
}

func (Tracker) TableName() string { return "trackers" }

// Bot tracker 在某个出口国家的一次实例化，是调度的基本单元。
type Bot struct {
	ID            int64          `json:"id"             gorm:"column:id;primaryKey"`
	TrackerID     int64          `json:"tracker_id"     gorm:"column:tracker_id;index"`
	Family        string         `json:"family"         gorm:"column:family;size:64;index"`
	Status        Status         `json:"status"         gorm:"column:status;index"`
	State         datatypes.JSON `json:"state"          gorm:"column:state"` // 模块私有状态，核心只负责透传
	FailingSpree  int            `json:"failing_spree"  gorm:"column:failing_spree"`
	NextExecution *time.Time     `json:"next_execution" gorm:"column:next_execution;index"` // nil 代表永不执行
	Country       string         `json:"country"        gorm:"column:country;size:8"`
	LastError     string         `json:"last_error"     gorm:"column:last_error;size:1024"`
	CreatedAt     time.Time      `json:"created_at"     gorm:"column:created_at"`
	UpdatedAt     time.Time      `json:"updated_at"     gorm:"column:updated_at"`
}

func (Bot) TableName() string { return "bots" }

// Task bot 的一次执行。任务只会被创建和终结，不会被复用，
// 重试表现为针对同一 bot 的新任务。
type Task struct {
	ID         int64     `json:"id"          gorm:"column:id;primaryKey"`
	BotID      int64     `json:"bot_id"      gorm:"column:bot_id;index"`
	Status     Status    `json:"status"      gorm:"column:status;index"`
	Proxy      string    `json:"proxy"       gorm:"column:proxy;size:256"` // 分配的代理连接串
	ReportTime time.Time `json:"report_time" gorm:"column:report_time"`
	CreatedAt  time.Time `json:"created_at"  gorm:"column:created_at"`
	UpdatedAt  time.Time `json:"updated_at"  gorm:"column:updated_at"`
}

func (Task) TableName() string { return "tasks" }

// 制品类型。
const (
	ResultBinary = "binary"
	ResultConfig = "config"
	ResultBlob   = "blob"
)

// Result 一次任务产出的制品元数据，内容本体存放在外部制品库。
type Result struct {
	ID         int64          `json:"id"          gorm:"column:id;primaryKey"`
	TaskID     int64          `json:"task_id"     gorm:"column:task_id;index"`
	Type       string         `json:"type"        gorm:"column:type;size:16"`
	Name       string         `json:"name"        gorm:"column:name;size:256"`
	SHA256     string         `json:"sha256"      gorm:"column:sha256;size:64;index"`
	Tags       datatypes.JSON `json:"tags"        gorm:"column:tags"`
	UploadTime time.Time      `json:"upload_time" gorm:"column:upload_time"`
}

func (Result) TableName() string { return "results" }

// Proxy 出口代理。
type Proxy struct {
	ID       int64  `json:"id"       gorm:"column:id;primaryKey"`
	Host     string `json:"host"     gorm:"column:host;size:256"`
	Port     int    `json:"port"     gorm:"column:port"`
	Country  string `json:"country"  gorm:"column:country;size:8;index"`
	Username string `json:"username" gorm:"column:username;size:128"`
	Password string `json:"-"        gorm:"column:password;size:128"`
}

func (Proxy) TableName() string { return "proxies" }

// URL 代理连接串，socks5h 表示域名也走代理端解析。
func (p Proxy) URL() string {
	host := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	if p.Username != "" && p.Password != "" {
		return "socks5h://" + p.Username + ":" + p.Password + "@" + host
	}
	return "socks5h://" + host
}

// All 全部数据表模型，自动建表时使用。
func All() []any {
	return []any{&Tracker{}, &Bot{}, &Task{}, &Result{}, &Proxy{}}
}
