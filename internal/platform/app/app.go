package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ogurasousui/engagement-automation/internal/adapters/grpc/handler"
	"github.com/ogurasousui/engagement-automation/internal/adapters/lock/redislock"
	"github.com/ogurasousui/engagement-automation/internal/adapters/notify/rabbitmq"
	"github.com/ogurasousui/engagement-automation/internal/adapters/repository/postgres"
	"github.com/ogurasousui/engagement-automation/internal/core/automation"
	"github.com/ogurasousui/engagement-automation/internal/core/employee"
	"github.com/ogurasousui/engagement-automation/internal/core/event"
	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
	"github.com/ogurasousui/engagement-automation/internal/platform/config"
	pg "github.com/ogurasousui/engagement-automation/internal/platform/db/postgres"
	"github.com/ogurasousui/engagement-automation/internal/platform/redis"
)

// App は設定から組み立てた依存関係一式です。
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Registry *prometheus.Registry
	Engine   *automation.Engine
	Services []handler.Service

	closers []func() error
}

// Build は DB・Redis・RabbitMQ へ接続し、エンジンと gRPC ハンドラーを組み立てます。
// Redis が未設定の場合は PostgreSQL の advisory lock で実行を排他し、
// RabbitMQ が未設定の場合は作成通知を行いません。
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	window, err := event.ParseWindow(cfg.Automation.UpcomingWindow)
	if err != nil {
		return nil, fmt.Errorf("app: automation.upcoming_window: %w", err)
	}

	pool, err := pg.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	employeeRepo := postgres.NewEmployeeRepository(pool)
	templateRepo := postgres.NewTemplateRepository(pool)
	timelineRepo := postgres.NewTimelineRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)
	txManager := pg.NewTransactionManager(pool, logger.Named("tx"))

	opts := automation.Options{
		Logger:     logger.Named("automation"),
		RunTimeout: cfg.Automation.RunTimeout,
	}

	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		opts.Locker = redislock.New(client, cfg.Automation.LockTTL)
	} else {
		opts.Locker = pg.NewAdvisoryLocker(pool)
	}

	if cfg.RabbitMQ.Enabled() {
		publisher, err := rabbitmq.Dial(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.closers = append(a.closers, publisher.Close)
		opts.Notifier = publisher
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts.Metrics = automation.NewMetrics(a.Registry)

	a.Engine = automation.NewEngine(employeeRepo, templateRepo, eventRepo, timelineRepo, opts)

	employeeSvc := employee.NewService(employeeRepo, nil, txManager)
	eventSvc := event.NewService(eventRepo, nil, txManager, event.Options{
		Window:   window,
		Location: cfg.Automation.Location,
	})
	timelineSvc := timeline.NewService(timelineRepo)

	a.Services = []handler.Service{
		handler.NewAutomationGrpcHandler(a.Engine, cfg.Automation.Location),
		handler.NewEmployeeEventGrpcHandler(eventSvc),
		handler.NewEmployeeGrpcHandler(employeeSvc),
		handler.NewTimelineGrpcHandler(timelineSvc),
	}

	return a, nil
}

// Ping は DB の疎通を確認します。
func (a *App) Ping(ctx context.Context) error {
	if a.Pool == nil {
		return errors.New("app: database pool is not initialized")
	}
	return a.Pool.Ping(ctx)
}

// Close は接続を開いた順と逆順に閉じます。
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close resource", zap.Error(err))
		}
	}
	a.closers = nil
}
