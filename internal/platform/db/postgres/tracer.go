package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	defaultSlowQueryThreshold = 100 * time.Millisecond
	maxLoggedSQLLength        = 200
)

type queryTraceKey struct{}

type queryTrace struct {
	started time.Time
	sql     string
}

// SlowQueryTracer は閾値を超えたクエリを警告ログに記録する pgx.QueryTracer です。
type SlowQueryTracer struct {
	logger    *zap.Logger
	threshold time.Duration
	now       func() time.Time
}

var _ pgx.QueryTracer = (*SlowQueryTracer)(nil)

// NewSlowQueryTracer は SlowQueryTracer を生成します。threshold が 0 以下の場合は 100ms です。
func NewSlowQueryTracer(logger *zap.Logger, threshold time.Duration) *SlowQueryTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = defaultSlowQueryThreshold
	}
	return &SlowQueryTracer{logger: logger, threshold: threshold, now: time.Now}
}

// TraceQueryStart はクエリの開始時刻と SQL をコンテキストに保持します。
func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryTraceKey{}, queryTrace{started: t.now(), sql: data.SQL})
}

// TraceQueryEnd は経過時間が閾値を超えていれば警告します。
func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	trace, ok := ctx.Value(queryTraceKey{}).(queryTrace)
	if !ok {
		return
	}

	took := t.now().Sub(trace.started)
	if took <= t.threshold {
		return
	}

	sql := trace.sql
	if len(sql) > maxLoggedSQLLength {
		sql = sql[:maxLoggedSQLLength] + "..."
	}

	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("took", took),
		zap.String("command_tag", data.CommandTag.String()),
	}
	if data.Err != nil {
		fields = append(fields, zap.Error(data.Err))
	}
	t.logger.Warn("slow query", fields...)
}
