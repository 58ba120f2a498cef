package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/infra/kfkcli"
	"github.com/cnctrack/cnctrack/library/pipelog"
	"github.com/cnctrack/cnctrack/track/botmod"
	"github.com/cnctrack/cnctrack/track/lifecycle"
	"github.com/cnctrack/cnctrack/track/respipe"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type scriptStep struct {
	out    botmod.Outcome
	err    error
	panics bool
	mutate func(env botmod.Env)
}

type fakeModule struct {
	env   botmod.Env
	addrs []botmod.Address
	epErr error
	steps []scriptStep
	calls int
}

func (fm *fakeModule) Endpoints(context.Context) ([]botmod.Address, error) {
	return fm.addrs, fm.epErr
}

func (fm *fakeModule) Attempt(_ context.Context, _ botmod.Address) (botmod.Outcome, error) {
	var st scriptStep
	if fm.calls < len(fm.steps) {
		st = fm.steps[fm.calls]
	}
	fm.calls++

	if st.mutate != nil {
		st.mutate(fm.env)
	}
	if st.panics {
		panic("模块内部错误")
	}

	return st.out, st.err
}

type fakeFactory struct {
	family   string
	critical []string
	mod      *fakeModule
	newErr   error
	built    bool
}

func (ff *fakeFactory) Family() string           { return ff.family }
func (ff *fakeFactory) CriticalParams() []string { return ff.critical }
func (ff *fakeFactory) ProxyCountries() []string { return nil }

func (ff *fakeFactory) New(_ context.Context, env botmod.Env) (botmod.Module, error) {
	ff.built = true
	if ff.newErr != nil {
		return nil, ff.newErr
	}
	ff.mod.env = env

	return ff.mod, nil
}

type fakeArtifacts struct {
	uploads int
	tags    []string
}

func (fa *fakeArtifacts) UploadFile(context.Context, string, []byte, string) (string, error) {
	fa.uploads++
	return "da39a3ee5e6b4b0d3255bfef95601890afd80709", nil
}

func (fa *fakeArtifacts) UploadConfig(context.Context, string, string, map[string]any, string) (string, error) {
	fa.uploads++
	return "da39a3ee5e6b4b0d3255bfef95601890afd80709", nil
}

func (fa *fakeArtifacts) UploadBlob(context.Context, string, string, string, string) (string, error) {
	fa.uploads++
	return "da39a3ee5e6b4b0d3255bfef95601890afd80709", nil
}

func (fa *fakeArtifacts) AddTag(_ context.Context, _, tag string) error {
	fa.tags = append(fa.tags, tag)
	return nil
}

func testWorker(t *testing.T, factories ...botmod.Factory) (*Worker, *gorm.DB) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))

	store := lifecycle.NewStore(db)
	log := slog.New(slog.DiscardHandler)
	pipe := respipe.New(db, &fakeArtifacts{}, log)
	reg := botmod.NewRegistry()
	require.NoError(t, reg.Register(factories...))

	policy := lifecycle.Policy{
		HealthyInterval: 12 * time.Hour,
		BackoffBase:     time.Hour,
		BackoffCap:      24 * time.Hour,
		CrashRetry:      15 * time.Minute,
		MaxFailingSpree: 5,
	}
	logfs := pipelog.NewFS(t.TempDir(), 1<<20, time.Minute)
	t.Cleanup(func() { _ = logfs.Close() })

	return New(db, store, pipe, reg, policy, time.Minute, logfs, log), db
}

// dispatched 模拟调度器刚派发完的现场：bot 执行中、任务记录已建。
func dispatched(t *testing.T, db *gorm.DB, family string, spree int) (*model.Bot, *model.Task) {
	tracker := &model.Tracker{
		ConfigHash: fmt.Sprintf("hash-%s-%d", t.Name(), time.Now().UnixNano()),
		Config:     []byte(`{"url":"http://c2.example.com"}`),
		Family:     family,
		Status:     model.SInprogress,
	}
	require.NoError(t, db.Create(tracker).Error)

	bot := &model.Bot{
		TrackerID:    tracker.ID,
		Family:       family,
		Status:       model.SInprogress,
		State:        []byte(`{"cursor":1}`),
		FailingSpree: spree,
		Country:      "us",
	}
	require.NoError(t, db.Create(bot).Error)

	task := &model.Task{BotID: bot.ID, Status: model.SInprogress, Proxy: "socks5h://10.0.0.1:1080"}
	require.NoError(t, db.Create(task).Error)

	return bot, task
}

func TestExecuteWorkingIteration(t *testing.T) {
	mod := &fakeModule{
		addrs: []botmod.Address{"a:1", "b:1", "c:1"},
		steps: []scriptStep{
			{out: botmod.Outcome{Continue: true}},
			{out: botmod.Outcome{Working: true, Continue: true}},
			{out: botmod.Outcome{}},
		},
	}
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: mod})
	bot, task := dispatched(t, db, "demofam", 3)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})
	require.Equal(t, 3, mod.calls, "Continue 为真时继续迭代")

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SWorking, got.Status)
	require.Equal(t, 0, got.FailingSpree, "成功清零连败计数")

	var gotTask model.Task
	require.NoError(t, db.First(&gotTask, task.ID).Error)
	require.Equal(t, model.SWorking, gotTask.Status)
	require.False(t, gotTask.ReportTime.IsZero())
}

func TestExecuteStopsWithoutContinue(t *testing.T) {
	mod := &fakeModule{
		addrs: []botmod.Address{"a:1", "b:1"},
		steps: []scriptStep{{out: botmod.Outcome{Working: true}}},
	}
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: mod})
	bot, task := dispatched(t, db, "demofam", 0)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})
	require.Equal(t, 1, mod.calls, "Continue 为假时停止迭代")
}

func TestExecuteFaultAborts(t *testing.T) {
	mod := &fakeModule{
		addrs: []botmod.Address{"a:1", "b:1", "c:1"},
		steps: []scriptStep{
			{out: botmod.Outcome{Working: true, Continue: true}},
			{err: errors.New("协议解析失败")},
		},
	}
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: mod})
	bot, task := dispatched(t, db, "demofam", 2)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})
	require.Equal(t, 2, mod.calls, "出错立即终止")

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SCrashed, got.Status, "出错前的 Working 不作数")
	require.Equal(t, 2, got.FailingSpree, "崩溃不影响连败计数")
	require.Contains(t, got.LastError, "协议解析失败")
	require.NotNil(t, got.NextExecution)

	var gotTask model.Task
	require.NoError(t, db.First(&gotTask, task.ID).Error)
	require.Equal(t, model.SCrashed, gotTask.Status)
}

func TestExecutePanicContained(t *testing.T) {
	mod := &fakeModule{
		addrs: []botmod.Address{"a:1"},
		steps: []scriptStep{{panics: true}},
	}
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: mod})
	bot, task := dispatched(t, db, "demofam", 0)

	require.NotPanics(t, func() {
		wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})
	})

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SCrashed, got.Status)
	require.Contains(t, got.LastError, "panic")
}

func TestExecuteArchiveOverridesWorking(t *testing.T) {
	mod := &fakeModule{
		addrs: []botmod.Address{"a:1"},
		steps: []scriptStep{{out: botmod.Outcome{Working: true, Archive: true}}},
	}
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: mod})
	bot, task := dispatched(t, db, "demofam", 0)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SArchived, got.Status, "Archive 优先于 Working")
	require.Nil(t, got.NextExecution)
}

func TestExecuteFailingSpree(t *testing.T) {
	mod := &fakeModule{
		addrs: []botmod.Address{"a:1"},
		steps: []scriptStep{{out: botmod.Outcome{}}},
	}
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: mod})
	bot, task := dispatched(t, db, "demofam", 0)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SFailing, got.Status)
	require.Equal(t, 1, got.FailingSpree)
}

func TestExecuteFailingSpreeArchives(t *testing.T) {
	mod := &fakeModule{
		addrs: []botmod.Address{"a:1"},
		steps: []scriptStep{{out: botmod.Outcome{}}},
	}
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: mod})
	bot, task := dispatched(t, db, "demofam", 4)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SArchived, got.Status, "连败触顶归档")
	require.Equal(t, 5, got.FailingSpree)
	require.Nil(t, got.NextExecution)
}

func TestExecuteMissingCriticalParams(t *testing.T) {
	factory := &fakeFactory{
		family:   "demofam",
		critical: []string{"url", "rc4_key"},
		mod:      &fakeModule{},
	}
	wk, db := testWorker(t, factory)
	bot, task := dispatched(t, db, "demofam", 0) // 配置里没有 rc4_key

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})
	require.False(t, factory.built, "关键参数残缺不应构造模块")

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SArchived, got.Status)
	require.Contains(t, got.LastError, "rc4_key")
}

func TestExecuteUnknownFamily(t *testing.T) {
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: &fakeModule{}})
	bot, task := dispatched(t, db, "ghostfam", 0)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.Equal(t, model.SCrashed, got.Status)
	require.Contains(t, got.LastError, "ghostfam")
}

func TestExecuteStaleBotDiscarded(t *testing.T) {
	mod := &fakeModule{addrs: []botmod.Address{"a:1"}}
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: mod})
	bot, task := dispatched(t, db, "demofam", 0)

	// 清扫器抢先回收了 bot。
	require.NoError(t, db.Model(&model.Bot{}).Where("id = ?", bot.ID).
		UpdateColumn("status", model.SCrashed).Error)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})
	require.Zero(t, mod.calls, "已回收的 bot 不应再执行")

	var gotTask model.Task
	require.NoError(t, db.First(&gotTask, task.ID).Error)
	require.Equal(t, model.SCrashed, gotTask.Status)
}

func TestExecutePersistsState(t *testing.T) {
	mod := &fakeModule{
		addrs: []botmod.Address{"a:1"},
		steps: []scriptStep{{
			out: botmod.Outcome{Working: true},
			mutate: func(env botmod.Env) {
				env.State["cursor"] = 42
				env.State["last_addr"] = "a:1"
			},
		}},
	}
	wk, db := testWorker(t, &fakeFactory{family: "demofam", mod: mod})
	bot, task := dispatched(t, db, "demofam", 0)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})

	var got model.Bot
	require.NoError(t, db.First(&got, bot.ID).Error)
	require.JSONEq(t, `{"cursor":42,"last_addr":"a:1"}`, string(got.State))
}

func TestExecuteConfigHashInjected(t *testing.T) {
	var seen map[string]any
	factory := &fakeFactory{family: "demofam", mod: &fakeModule{addrs: []botmod.Address{"a:1"}}}
	mod := factory.mod
	mod.steps = []scriptStep{{
		out:    botmod.Outcome{Working: true},
		mutate: func(env botmod.Env) { seen = env.Config },
	}}
	wk, db := testWorker(t, factory)
	bot, task := dispatched(t, db, "demofam", 0)

	wk.Execute(context.Background(), kfkcli.TaskMessage{TaskID: task.ID, BotID: bot.ID})

	require.NotNil(t, seen)
	require.Equal(t, "http://c2.example.com", seen["url"])
	require.NotEmpty(t, seen["_id"], "配置指纹随配置注入")
}
