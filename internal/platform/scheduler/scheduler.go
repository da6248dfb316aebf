package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job は予定時刻に実行される処理です。now は設定タイムゾーンでの現在時刻です。
type Job func(ctx context.Context, now time.Time)

// Scheduler は cron 式に従って Job を実行します。
// 前回の実行が終わっていない場合、その回はスキップします。
type Scheduler struct {
	cron   *cron.Cron
	job    cron.Job
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time

	mu  sync.RWMutex
	ctx context.Context
}

// New は spec (5 フィールドの cron 式または @daily などの記述子) で Scheduler を構築します。
func New(spec string, loc *time.Location, logger *zap.Logger, job Job) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduler: job is required")
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cl := cronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		loc:    loc,
		logger: logger,
		now:    time.Now,
		ctx:    context.Background(),
	}

	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	inner := cron.FuncJob(func() {
		ctx := s.context()
		if ctx.Err() != nil {
			return
		}
		job(ctx, s.now().In(s.loc))
	})

	id, err := s.cron.AddJob(spec, inner)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse schedule %q: %w", spec, err)
	}
	s.job = s.cron.Entry(id).WrappedJob

	return s, nil
}

// Run はスケジューラを開始し、ctx がキャンセルされると実行中の Job の終了を待って戻ります。
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Time("next", s.Next()))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// Next は次回の実行予定時刻を返します。
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(s.now().In(s.loc))
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// cronLogger は cron.Logger を zap に橋渡しします。
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
