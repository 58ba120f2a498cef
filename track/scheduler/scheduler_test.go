package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/infra/kfkcli"
	"github.com/cnctrack/cnctrack/track/botmod"
	"github.com/cnctrack/cnctrack/track/lifecycle"
	"github.com/cnctrack/cnctrack/track/proxypool"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeQueue struct {
	msgs []kfkcli.TaskMessage
	err  error
}

func (fq *fakeQueue) Enqueue(_ context.Context, msg kfkcli.TaskMessage) error {
	if fq.err != nil {
		return fq.err
	}
	fq.msgs = append(fq.msgs, msg)
	return nil
}

type fakeFactory struct {
	family    string
	critical  []string
	countries []string
	mod       botmod.Module
	err       error
}

func (ff *fakeFactory) Family() string           { return ff.family }
func (ff *fakeFactory) CriticalParams() []string { return ff.critical }
func (ff *fakeFactory) ProxyCountries() []string { return ff.countries }

func (ff *fakeFactory) New(context.Context, botmod.Env) (botmod.Module, error) {
	return ff.mod, ff.err
}

func testDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))

	return db
}

func testScheduler(t *testing.T, queue Enqueuer, factories ...botmod.Factory) (*Scheduler, *gorm.DB, *proxypool.Pool) {
	db := testDB(t)
	store := lifecycle.NewStore(db)
	pool := proxypool.New()
	reg := botmod.NewRegistry()
	require.NoError(t, reg.Register(factories...))

	policy := lifecycle.Policy{
		HealthyInterval: 12 * time.Hour,
		BackoffBase:     time.Hour,
		BackoffCap:      24 * time.Hour,
		CrashRetry:      15 * time.Minute,
		MaxFailingSpree: 5,
	}
	opt := Options{StuckAfter: 30 * time.Minute, DefaultCountry: "us"}
	log := slog.New(slog.DiscardHandler)
	sch := New(db, store, pool, queue, reg, policy, opt, log)

	return sch, db, pool
}

func seedTracker(t *testing.T, db *gorm.DB, family string) *model.Tracker {
	tracker := &model.Tracker{
		ConfigHash: fmt.Sprintf("hash-%s-%d", t.Name(), time.Now().UnixNano()),
		Config:     []byte(`{"url":"http://c2.example.com"}`),
		Family:     family,
		Status:     model.SNew,
	}
	require.NoError(t, db.Create(tracker).Error)

	return tracker
}

func seedBot(t *testing.T, db *gorm.DB, trackerID int64, family, country string,
	status model.Status, next *time.Time) *model.Bot {
	bot := &model.Bot{
		TrackerID:     trackerID,
		Family:        family,
		Status:        status,
		State:         []byte("{}"),
		NextExecution: next,
		Country:       country,
	}
	require.NoError(t, db.Create(bot).Error)

	return bot
}

func TestScanOnceDispatchesDueBots(t *testing.T) {
	queue := &fakeQueue{}
	sch, db, pool := testScheduler(t, queue, &fakeFactory{family: "demofam"})
	pool.Replace([]model.Proxy{{Host: "10.0.0.1", Port: 1080, Country: "us"}})

	tracker := seedTracker(t, db, "demofam")
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	due := seedBot(t, db, tracker.ID, "demofam", "us", model.SNew, &past)
	seedBot(t, db, tracker.ID, "demofam", "us", model.SWorking, &future) // 未到期
	seedBot(t, db, tracker.ID, "demofam", "us", model.SArchived, nil)    // 终态

	num, err := sch.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, num)
	require.Len(t, queue.msgs, 1)
	require.Equal(t, due.ID, queue.msgs[0].BotID)

	var got model.Bot
	require.NoError(t, db.First(&got, due.ID).Error)
	require.Equal(t, model.SInprogress, got.Status)

	var task model.Task
	require.NoError(t, db.First(&task, queue.msgs[0].TaskID).Error)
	require.Equal(t, due.ID, task.BotID)
	require.Equal(t, model.SInprogress, task.Status)
	require.Equal(t, "socks5h://10.0.0.1:1080", task.Proxy)
}

func TestDispatchBusyBot(t *testing.T) {
	queue := &fakeQueue{}
	sch, db, pool := testScheduler(t, queue, &fakeFactory{family: "demofam"})
	pool.Replace([]model.Proxy{{Host: "10.0.0.1", Port: 1080, Country: "us"}})

	tracker := seedTracker(t, db, "demofam")
	now := time.Now()
	bot := seedBot(t, db, tracker.ID, "demofam", "us", model.SInprogress, &now)

	err := sch.Dispatch(context.Background(), *bot)
	require.ErrorIs(t, err, lifecycle.ErrBotBusy)
	require.Empty(t, queue.msgs)
}

func TestDispatchNoProxy(t *testing.T) {
	queue := &fakeQueue{}
	sch, db, _ := testScheduler(t, queue, &fakeFactory{family: "demofam"})

	tracker := seedTracker(t, db, "demofam")
	now := time.Now()
	bot := seedBot(t, db, tracker.ID, "demofam", "us", model.SNew, &now)

	err := sch.Dispatch(context.Background(), *bot)
	require.ErrorIs(t, err, proxypool.ErrNoProxy)
	require.Empty(t, queue.msgs, "没有代理不应入队")

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SFailing, got.Status, "无代理按一次失败处理")
	require.Equal(t, 1, got.FailingSpree)
	require.NotNil(t, got.NextExecution)
}

func TestScanOnceNoProxyNotCounted(t *testing.T) {
	queue := &fakeQueue{}
	sch, db, _ := testScheduler(t, queue, &fakeFactory{family: "demofam"})

	tracker := seedTracker(t, db, "demofam")
	past := time.Now().Add(-time.Minute)
	seedBot(t, db, tracker.ID, "demofam", "us", model.SNew, &past)

	num, err := sch.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, num, "没有真正入队就不算派发")
	require.Empty(t, queue.msgs)
}

func TestDispatchEnqueueFailure(t *testing.T) {
	queue := &fakeQueue{err: errors.New("kafka 不可用")}
	sch, db, pool := testScheduler(t, queue, &fakeFactory{family: "demofam"})
	pool.Replace([]model.Proxy{{Host: "10.0.0.1", Port: 1080, Country: "us"}})

	tracker := seedTracker(t, db, "demofam")
	now := time.Now()
	bot := seedBot(t, db, tracker.ID, "demofam", "us", model.SNew, &now)

	require.Error(t, sch.Dispatch(context.Background(), *bot))

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SCrashed, got.Status, "入队失败不能把 bot 留在执行中")
	require.NotNil(t, got.NextExecution)

	var task model.Task
	require.NoError(t, db.Where("bot_id = ?", bot.ID).First(&task).Error)
	require.Equal(t, model.SCrashed, task.Status)
}

func TestReconcileOnce(t *testing.T) {
	queue := &fakeQueue{}
	sch, db, _ := testScheduler(t, queue, &fakeFactory{family: "demofam"})

	tracker := seedTracker(t, db, "demofam")
	now := time.Now()
	stuck := seedBot(t, db, tracker.ID, "demofam", "us", model.SInprogress, nil)
	fresh := seedBot(t, db, tracker.ID, "demofam", "de", model.SInprogress, nil)

	// 卡死的 bot 与任务：最后一次更新在一小时前。
	past := now.Add(-time.Hour)
	require.NoError(t, db.Model(&model.Bot{}).Where("id = ?", stuck.ID).
		UpdateColumn("updated_at", past).Error)
	task := &model.Task{BotID: stuck.ID, Status: model.SInprogress, Proxy: "socks5h://10.0.0.1:1080"}
	require.NoError(t, db.Create(task).Error)
	require.NoError(t, db.Model(&model.Task{}).Where("id = ?", task.ID).
		UpdateColumn("updated_at", past).Error)

	num, err := sch.ReconcileOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, num)

	var got model.Bot
	require.NoError(t, db.First(&got, stuck.ID).Error)
	require.Equal(t, model.SFailing, got.Status)
	require.Equal(t, 1, got.FailingSpree, "超时按一次失败计")
	require.NotNil(t, got.NextExecution, "回收后要能重新调度")

	// 再清扫一轮：bot 已不在执行中，不会二次计数。
	num, err = sch.ReconcileOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, num)
	require.NoError(t, db.First(&got, stuck.ID).Error)
	require.Equal(t, 1, got.FailingSpree)

	got = model.Bot{}
	require.NoError(t, db.First(&got, fresh.ID).Error)
	require.Equal(t, model.SInprogress, got.Status, "新派发的 bot 不受清扫影响")

	var gotTask model.Task
	require.NoError(t, db.First(&gotTask, task.ID).Error)
	require.Equal(t, model.SCrashed, gotTask.Status)
}

func TestEnsureBotsPerCountry(t *testing.T) {
	queue := &fakeQueue{}
	sch, db, pool := testScheduler(t, queue,
		&fakeFactory{family: "demofam"},
		&fakeFactory{family: "whitefam", countries: []string{"us", "jp"}},
	)
	pool.Replace([]model.Proxy{
		{Host: "10.0.0.1", Port: 1080, Country: "us"},
		{Host: "10.0.1.1", Port: 1080, Country: "de"},
	})
	ctx := context.Background()

	tracker := seedTracker(t, db, "demofam")
	num, err := sch.EnsureBots(ctx, tracker)
	require.NoError(t, err)
	require.Equal(t, 2, num, "不限国家时每个国家一个 bot")

	// 再跑一遍不会重复建。
	num, err = sch.EnsureBots(ctx, tracker)
	require.NoError(t, err)
	require.Zero(t, num)

	white := seedTracker(t, db, "whitefam")
	num, err = sch.EnsureBots(ctx, white)
	require.NoError(t, err)
	require.Equal(t, 1, num, "白名单只命中 us")

	var bots []model.Bot
	require.NoError(t, db.Where("tracker_id = ?", white.ID).Find(&bots).Error)
	require.Len(t, bots, 1)
	require.Equal(t, "us", bots[0].Country)
	require.Equal(t, model.SNew, bots[0].Status)
	require.NotNil(t, bots[0].NextExecution)
}

func TestEnsureBotsMissingCriticalParams(t *testing.T) {
	queue := &fakeQueue{}
	sch, db, pool := testScheduler(t, queue,
		&fakeFactory{family: "demofam", critical: []string{"url", "rc4_key"}},
	)
	pool.Replace([]model.Proxy{{Host: "10.0.0.1", Port: 1080, Country: "us"}})
	ctx := context.Background()

	tracker := seedTracker(t, db, "demofam") // 配置里没有 rc4_key
	num, err := sch.EnsureBots(ctx, tracker)
	require.NoError(t, err)
	require.Equal(t, 1, num)

	var bots []model.Bot
	require.NoError(t, db.Where("tracker_id = ?", tracker.ID).Find(&bots).Error)
	require.Len(t, bots, 1)
	require.Equal(t, model.SArchived, bots[0].Status, "关键参数残缺直接归档，不进入调度")
	require.Nil(t, bots[0].NextExecution)
	require.Contains(t, bots[0].LastError, "rc4_key")
}

func TestEnsureBotsDefaultCountry(t *testing.T) {
	queue := &fakeQueue{}
	sch, db, _ := testScheduler(t, queue, &fakeFactory{family: "demofam"})
	ctx := context.Background()

	tracker := seedTracker(t, db, "demofam")
	num, err := sch.EnsureBots(ctx, tracker)
	require.NoError(t, err)
	require.Equal(t, 1, num, "代理池为空时退化为默认国家的单个 bot")

	var bots []model.Bot
	require.NoError(t, db.Where("tracker_id = ?", tracker.ID).Find(&bots).Error)
	require.Len(t, bots, 1)
	require.Equal(t, "us", bots[0].Country)
}
