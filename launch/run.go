// Package launch 负责进程的装配与启动。
package launch

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cnctrack/cnctrack/application/cronjob"
	"github.com/cnctrack/cnctrack/application/expose/restapi"
	"github.com/cnctrack/cnctrack/application/expose/service"
	"github.com/cnctrack/cnctrack/config"
	"github.com/cnctrack/cnctrack/datalayer/model"
	"github.com/cnctrack/cnctrack/datalayer/sqldb"
	"github.com/cnctrack/cnctrack/infra/kfkcli"
	"github.com/cnctrack/cnctrack/infra/mwdbcli"
	"github.com/cnctrack/cnctrack/infra/proxysrc"
	"github.com/cnctrack/cnctrack/library/cronv3"
	"github.com/cnctrack/cnctrack/library/gopool"
	"github.com/cnctrack/cnctrack/library/logger"
	"github.com/cnctrack/cnctrack/library/pipelog"
	"github.com/cnctrack/cnctrack/library/profile"
	"github.com/cnctrack/cnctrack/library/shipx"
	"github.com/cnctrack/cnctrack/library/validation"
	"github.com/cnctrack/cnctrack/track/botmod"
	"github.com/cnctrack/cnctrack/track/lifecycle"
	"github.com/cnctrack/cnctrack/track/proxypool"
	"github.com/cnctrack/cnctrack/track/respipe"
	"github.com/cnctrack/cnctrack/track/scheduler"
	"github.com/cnctrack/cnctrack/track/worker"
	"github.com/grafana/pyroscope-go"
	"github.com/xgfone/ship/v5"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Run(ctx context.Context, cfile string, reg *botmod.Registry) error {
	return Exec(ctx, profile.NewFile[config.Config](cfile), reg)
}

func Exec(ctx context.Context, pfl profile.Reader[config.Config], reg *botmod.Registry) error {
	cfg, err := pfl.Read(ctx)
	if err != nil {
		return err
	}
	cfg.Normalize()

	valid := validation.New()
	if err = valid.Validate(cfg); err != nil {
		return err
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(logger.ParseLevel(cfg.Logger.Level))
	logOption := &slog.HandlerOptions{AddSource: true, Level: logLevel}
	handlers := make([]slog.Handler, 0, 2)
	if cfg.Logger.Console {
		handlers = append(handlers, logger.NewTint(os.Stdout, logOption))
	}
	if name := cfg.Logger.Filename; name != "" {
		handlers = append(handlers, logger.NewRotate(name, cfg.Logger.MaxSize, cfg.Logger.Backups, logOption))
	}
	if len(handlers) == 0 {
		handlers = append(handlers, logger.NewTint(os.Stdout, logOption))
	}
	logHandler := logger.Multi(handlers...)
	log := slog.New(logHandler)
	log.Info("日志组件初始化完毕")

	if cfg.Pyroscope.URL != "" {
		prf, exx := startPyroscope(cfg.Pyroscope, logHandler)
		if exx != nil {
			log.Warn("pyroscope 启动失败", slog.Any("error", exx))
		} else {
			defer prf.Stop()
		}
	}

	gormLogCfg := gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		LogLevel:                  gormlogger.Warn,
	}
	gormLog := logger.NewGorm(logHandler, gormLogCfg)
	db, err := sqldb.Open(cfg.Database.DSN, &gorm.Config{Logger: gormLog})
	if err != nil {
		log.Error("连接数据库发生错误", slog.Any("error", err))
		return err
	}
	if sdb, _ := db.DB(); sdb != nil {
		defer sdb.Close() // 结束时释放数据库连接。
		sdb.SetMaxIdleConns(cfg.Database.MaxIdleConn)
		sdb.SetMaxOpenConns(cfg.Database.MaxOpenConn)
		sdb.SetConnMaxLifetime(time.Duration(cfg.Database.MaxLifeTime))
		sdb.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime))
	}
	log.Info("数据库连接成功", slog.String("dialect", db.Dialector.Name()))

	if cfg.Database.Migrate {
		if err = db.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
			log.Error("自动建表失败", slog.Any("error", err))
			return err
		}
	}

	policy := lifecycle.Policy{
		HealthyInterval: time.Duration(cfg.Tracker.HealthyInterval),
		BackoffBase:     time.Duration(cfg.Tracker.BackoffBase),
		BackoffCap:      time.Duration(cfg.Tracker.BackoffCap),
		CrashRetry:      time.Duration(cfg.Tracker.CrashRetry),
		MaxFailingSpree: cfg.Tracker.MaxFailingSpree,
	}
	store := lifecycle.NewStore(db)
	pool := proxypool.New()

	producer := kfkcli.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	schedOpt := scheduler.Options{
		StuckAfter:     time.Duration(cfg.Tracker.StuckAfter),
		DefaultCountry: cfg.Proxy.Default,
	}
	sched := scheduler.New(db, store, pool, producer, reg, policy, schedOpt, log)

	artifact := mwdbcli.New(mwdbcli.Options{
		URL:   cfg.Artifact.URL,
		Token: cfg.Artifact.Token,
		QPS:   cfg.Artifact.QPS,
	}, nil)
	pipe := respipe.New(db, artifact, log)

	logFS := pipelog.NewFS(cfg.Tracker.LogDir, cfg.Tracker.LogMaxSize, time.Minute)
	defer logFS.Close()

	var source proxysrc.Source
	if cfg.Proxy.Method == "file" {
		source = proxysrc.NewFile(cfg.Proxy.Path)
	} else {
		source = proxysrc.NewURL(cfg.Proxy.URL, nil)
	}

	proxySvc := service.NewProxy(db, source, pool, sched, valid, log)
	if err = proxySvc.Load(ctx); err != nil {
		log.Warn("从数据库恢复代理池失败", slog.Any("error", err))
	}
	if err = proxySvc.Sync(ctx); err != nil {
		// 来源暂时不可用不阻断启动，定时任务稍后会重试。
		log.Warn("启动时刷新代理池失败", slog.Any("error", err))
	}

	trackerSvc := service.NewTracker(db, store, sched, reg, log)
	botSvc := service.NewBot(db, store, log)
	taskSvc := service.NewTask(db, logFS)
	resultSvc := service.NewResult(db)
	statsSvc := service.NewStats(db, pool)

	wk := worker.New(db, store, pipe, reg, policy, time.Duration(cfg.Tracker.TaskTimeout), logFS, log)
	wpool := gopool.New(cfg.Kafka.Workers)
	consumers := make([]*kfkcli.Consumer, 0, cfg.Kafka.Workers)
	for i := 0; i < cfg.Kafka.Workers; i++ {
		consumer := kfkcli.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Group)
		consumers = append(consumers, consumer)
		wpool.Go(func() { _ = wk.Run(ctx, consumer) })
	}
	log.Info("worker 已启动", slog.Int("workers", cfg.Kafka.Workers))

	crond := cronv3.New(ctx, log)
	crond.Submit(
		cronjob.NewScan(sched, time.Duration(cfg.Tracker.ScanInterval)),
		cronjob.NewSweep(sched, time.Duration(cfg.Tracker.SweepInterval)),
		cronjob.NewProxySync(proxySvc, time.Duration(cfg.Tracker.ProxyRefresh)),
	)
	if cfg.Metrics.PushURL != "" {
		crond.Submit(cronjob.NewMetrics(cfg.Metrics, statsSvc))
	}
	crond.Start()
	defer crond.Stop()

	sh := ship.Default()
	sh.Logger = shipx.NewLog(logHandler)
	sh.Validator = valid
	sh.NotFound = shipx.NotFound
	sh.HandleError = shipx.HandleError

	routes := []shipx.RouteBinder{
		shipx.NewPprof(),
		restapi.NewHealth(),
		restapi.NewTracker(trackerSvc),
		restapi.NewBot(botSvc),
		restapi.NewTask(taskSvc),
		restapi.NewResult(resultSvc),
		restapi.NewProxy(proxySvc),
		restapi.NewStats(statsSvc),
	}
	baseAPI := sh.Group("/api/v1")
	if err = shipx.BindRoutes(baseAPI, routes); err != nil {
		log.Error("初始化路由出错", slog.Any("error", err))
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Server.Bind,
		Handler: sh,
	}
	errs := make(chan error, 1)
	go serveHTTP(errs, srv)
	log.Info("HTTP 服务已启动", slog.String("bind", cfg.Server.Bind))

	select {
	case err = <-errs:
	case <-ctx.Done():
		err = ctx.Err()
	}
	_ = srv.Close()

	for _, consumer := range consumers {
		_ = consumer.Close()
	}
	wpool.Wait()

	return err
}

func serveHTTP(errs chan<- error, srv *http.Server) {
	errs <- srv.ListenAndServe()
}

func startPyroscope(cfg config.Pyroscope, h slog.Handler) (*pyroscope.Profiler, error) {
	hostname, _ := os.Hostname()
	profileTypes := []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileInuseObjects,
		pyroscope.ProfileAllocObjects,
		pyroscope.ProfileInuseSpace,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileGoroutines,
	}

	return pyroscope.Start(pyroscope.Config{
		ApplicationName:   "cnctrack",
		Tags:              map[string]string{"instance": hostname},
		ServerAddress:     cfg.URL,
		BasicAuthUser:     cfg.Username,
		BasicAuthPassword: cfg.Password,
		Logger:            logger.NewFormat(h, 5),
		ProfileTypes:      profileTypes,
	})
}
