package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
	"github.com/ogurasousui/engagement-automation/internal/platform/admin"
	"github.com/ogurasousui/engagement-automation/internal/platform/app"
	"github.com/ogurasousui/engagement-automation/internal/platform/config"
	"github.com/ogurasousui/engagement-automation/internal/platform/logger"
	"github.com/ogurasousui/engagement-automation/internal/platform/scheduler"
	"github.com/ogurasousui/engagement-automation/internal/platform/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	a, err := app.Build(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	grpcServer := server.New(cfg.Server.ListenAddr, zl.Named("grpc"), a.Services)
	g.Go(func() error {
		return grpcServer.Run(gctx)
	})

	if cfg.Metrics.ListenAddr != "" {
		adminServer := admin.NewServer(cfg.Metrics.ListenAddr, cfg.Metrics.Path, a.Registry, a.Ping, zl.Named("admin"))
		g.Go(func() error {
			return adminServer.Run(gctx)
		})
	}

	if cfg.Automation.Schedule != "" {
		loc := cfg.Automation.Location
		sched, err := scheduler.New(cfg.Automation.Schedule, loc, zl.Named("scheduler"), func(ctx context.Context, now time.Time) {
			result := a.Engine.ProcessAllTriggers(ctx, calendar.Today(now, loc))
			zl.Info("scheduled automation finished",
				zap.Int("birthdays", result.Birthdays.Processed),
				zap.Int("anniversaries", result.Anniversaries.Processed),
				zap.Int("custom_events", result.CustomEvents.Processed),
				zap.Int("errors", result.ErrorCount()),
			)
		})
		if err != nil {
			return fmt.Errorf("build scheduler: %w", err)
		}
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	return g.Wait()
}
