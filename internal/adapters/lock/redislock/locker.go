package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "lock:"
	defaultTTL    = 15 * time.Minute
)

// 自分が取得したロックのみ削除する。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker は Redis の SET NX PX による実行ロックです。
// TTL を過ぎたロックは自動で失効するため、プロセスが落ちても翌日の実行を妨げません。
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	token  func() string
}

// New は Locker を生成します。ttl が 0 以下の場合は 15 分です。
func New(client redis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{
		client: client,
		ttl:    ttl,
		prefix: defaultPrefix,
		token:  uuid.NewString,
	}
}

// TryLock は key のロックを取得します。既に保持されている場合は ok=false を返します。
func (l *Locker) TryLock(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	lockKey := l.prefix + key
	token := l.token()

	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redislock: acquire %s: %w", lockKey, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err(); err != nil {
			return fmt.Errorf("redislock: release %s: %w", lockKey, err)
		}
		return nil
	}
	return unlock, true, nil
}
