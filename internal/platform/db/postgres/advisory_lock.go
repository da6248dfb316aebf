package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const tryAdvisoryXactLockSQL = `SELECT pg_try_advisory_xact_lock(hashtextextended($1, 0))`

// AdvisoryLocker はトランザクションスコープの advisory lock で実行を排他します。
// ロックはトランザクションが終わるまで保持され、unlock でコミットして解放します。
type AdvisoryLocker struct {
	pool txStarter
}

// NewAdvisoryLocker は AdvisoryLocker を生成します。
func NewAdvisoryLocker(pool txStarter) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

// TryLock は key のロックを待たずに取得します。他で保持されている場合は ok=false です。
func (l *AdvisoryLocker) TryLock(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("postgres: begin lock tx: %w", err)
	}

	var acquired bool
	if err := tx.QueryRow(ctx, tryAdvisoryXactLockSQL, key).Scan(&acquired); err != nil {
		_ = tx.Rollback(ctx)
		return nil, false, fmt.Errorf("postgres: try advisory lock: %w", err)
	}

	if !acquired {
		if err := tx.Rollback(ctx); err != nil {
			return nil, false, fmt.Errorf("postgres: rollback lock tx: %w", err)
		}
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("postgres: release advisory lock: %w", err)
		}
		return nil
	}
	return unlock, true, nil
}
