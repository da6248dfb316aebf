package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ogurasousui/engagement-automation/internal/core/automation"
	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
	"github.com/ogurasousui/engagement-automation/internal/platform/app"
	"github.com/ogurasousui/engagement-automation/internal/platform/config"
	"github.com/ogurasousui/engagement-automation/internal/platform/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (defaults to CONFIG_PATH env or assets/local.yaml)")
		runDateRaw = flag.String("date", "", "run date in YYYY-MM-DD (defaults to today in automation.timezone)")
	)
	flag.Parse()

	target := "all"
	if flag.NArg() > 0 {
		target = flag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(effectiveConfigPath(*configPath))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	runDate, err := resolveRunDate(*runDateRaw, time.Now(), cfg.Automation.Location)
	if err != nil {
		log.Fatalf("invalid -date: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	a, err := app.Build(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize", zap.Error(err))
	}

	errCount, err := run(ctx, a.Engine, target, runDate, os.Stdout)
	a.Close()
	if err != nil {
		log.Fatalf("automation %s failed: %v", target, err)
	}
	if errCount > 0 {
		os.Exit(1)
	}
}

func effectiveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "assets/local.yaml"
}

func resolveRunDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return calendar.Today(now, loc), nil
	}
	return calendar.ParseDate(raw)
}

// run は target の種別を実行して結果を JSON で out に書き出し、エラー件数を返します。
func run(ctx context.Context, engine automation.UseCase, target string, runDate time.Time, out io.Writer) (int, error) {
	var (
		result   any
		errCount int
	)

	switch target {
	case "all":
		all := engine.ProcessAllTriggers(ctx, runDate)
		result, errCount = all, all.ErrorCount()
	case "birthdays":
		r := engine.ProcessBirthdayTriggers(ctx, runDate)
		result, errCount = r, len(r.Errors)
	case "anniversaries":
		r := engine.ProcessAnniversaryTriggers(ctx, runDate)
		result, errCount = r, len(r.Errors)
	case "custom":
		r := engine.ProcessCustomEventTriggers(ctx, runDate)
		result, errCount = r, len(r.Errors)
	default:
		return 0, fmt.Errorf("unsupported target %q (want all|birthdays|anniversaries|custom)", target)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return errCount, fmt.Errorf("encode result: %w", err)
	}
	return errCount, nil
}
